// Package models holds the GORM models behind the repositories. Domain types
// carry no ORM tags; each model converts with ToDomain and a FromDomain
// counterpart.
//
//   - integration.go: orders, order items, adapter configs, sync jobs, webhook events
//   - inventory.go: products, BOM edges, platform listings, warehouses, stock ledger
package models
