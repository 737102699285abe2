package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	appintegration "github.com/ordersync/backend/internal/application/integration"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/domain/inventory"
)

type configFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*integration.PlatformAdapterConfig, error)
}

type orderSyncer interface {
	Sync(ctx context.Context, cfg *integration.PlatformAdapterConfig, from, to *time.Time) (*integration.SyncStats, error)
}

type orderFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*integration.CanonicalOrder, error)
}

type jobSweeper interface {
	ExpireStaleJobs(ctx context.Context) (int64, error)
}

type tokenRefresher interface {
	RefreshExpiring(ctx context.Context) (appintegration.RefreshReport, error)
}

type webhookReprocessor interface {
	Reprocess(ctx context.Context, id uuid.UUID) (integration.WebhookResult, string, error)
}

type productFinder interface {
	FindProductBySKU(ctx context.Context, sku string) (*inventory.Product, error)
}

type bomEditor interface {
	AddComponent(ctx context.Context, setID, componentID uuid.UUID, qty decimal.Decimal) (*inventory.ProductBom, error)
	RemoveComponent(ctx context.Context, setID, componentID uuid.UUID) error
	Explode(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) ([]inventory.Component, error)
}

// services is what the commands operate on. Deductor is nil when inventory
// deduction is disabled.
type services struct {
	Configs  configFinder
	Engine   orderSyncer
	Orders   orderFinder
	Deductor appintegration.OrderDeductor
	Monitor  jobSweeper
	Tokens   tokenRefresher
	Webhooks webhookReprocessor
	Products productFinder
	Boms     bomEditor
}

// openFunc builds the services for one command run; the returned func
// releases them
type openFunc func(c *cli.Context) (*services, func(), error)

func newApp(open openFunc) *cli.App {
	withServices := func(action func(c *cli.Context, s *services) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			s, closeFn, err := open(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer closeFn()
			return action(c, s)
		}
	}

	return &cli.App{
		Name:  "syncctl",
		Usage: "operate the order sync engine from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file", EnvVars: []string{"ORDERSYNC_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			{
				Name:  "sync",
				Usage: "run one sync of a shop in the foreground",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config-id", Required: true, Usage: "adapter config id"},
					&cli.TimestampFlag{Name: "from", Layout: time.RFC3339, Usage: "window start (RFC3339)"},
					&cli.TimestampFlag{Name: "to", Layout: time.RFC3339, Usage: "window end (RFC3339)"},
				},
				Action: withServices(runSync),
			},
			{
				Name:      "deduct",
				Usage:     "deduct stock for one stored order",
				ArgsUsage: "<order-id>",
				Action:    withServices(runDeduct),
			},
			{
				Name:   "sweep",
				Usage:  "fail sync jobs stuck in RUNNING",
				Action: withServices(runSweep),
			},
			{
				Name:   "refresh-tokens",
				Usage:  "refresh access tokens that are about to expire",
				Action: withServices(runRefreshTokens),
			},
			{
				Name:      "reprocess",
				Usage:     "process one stored webhook event again",
				ArgsUsage: "<event-id>",
				Action:    withServices(runReprocess),
			},
			{
				Name:  "bom",
				Usage: "edit and inspect bills of materials",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "add a component to a set",
						ArgsUsage: "<set> <component>",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "qty", Value: "1", Usage: "component quantity per set"},
						},
						Action: withServices(runBomAdd),
					},
					{
						Name:      "remove",
						Usage:     "remove a component from a set",
						ArgsUsage: "<set> <component>",
						Action:    withServices(runBomRemove),
					},
					{
						Name:      "explode",
						Usage:     "list the leaf components of a product",
						ArgsUsage: "<product>",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "qty", Value: "1", Usage: "quantity of the product"},
						},
						Action: withServices(runBomExplode),
					},
				},
			},
		},
	}
}

func runSync(c *cli.Context, s *services) error {
	id, err := uuid.Parse(c.String("config-id"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config id: %v", err), 2)
	}
	cfg, err := s.Configs.FindByID(c.Context, id)
	if err != nil {
		return err
	}
	stats, err := s.Engine.Sync(c.Context, cfg, c.Timestamp("from"), c.Timestamp("to"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s: fetched=%d created=%d updated=%d skipped=%d errors=%d\n",
		cfg.ShopKey(), stats.Fetched, stats.Created, stats.Updated, stats.Skipped, stats.Errors)
	return nil
}

func runDeduct(c *cli.Context, s *services) error {
	if s.Deductor == nil {
		return cli.Exit("inventory deduction is disabled", 1)
	}
	id, err := uuidArg(c, 0, "order id")
	if err != nil {
		return err
	}
	order, err := s.Orders.FindByID(c.Context, id)
	if err != nil {
		return err
	}
	deducted, err := s.Deductor.Deduct(c.Context, order)
	if err != nil {
		return err
	}
	if deducted {
		fmt.Fprintf(c.App.Writer, "order %s deducted\n", order.PlatformOrderID)
	} else {
		fmt.Fprintf(c.App.Writer, "order %s already deducted\n", order.PlatformOrderID)
	}
	return nil
}

func runSweep(c *cli.Context, s *services) error {
	n, err := s.Monitor.ExpireStaleJobs(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "expired %d stale jobs\n", n)
	return nil
}

func runRefreshTokens(c *cli.Context, s *services) error {
	report, err := s.Tokens.RefreshExpiring(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "checked=%d refreshed=%d failed=%d\n", report.Checked, report.Refreshed, report.Failed)
	if report.Failed > 0 {
		return cli.Exit("some tokens could not be refreshed", 1)
	}
	return nil
}

func runReprocess(c *cli.Context, s *services) error {
	id, err := uuidArg(c, 0, "event id")
	if err != nil {
		return err
	}
	result, msg, err := s.Webhooks.Reprocess(c.Context, id)
	if err != nil {
		return err
	}
	if msg != "" {
		fmt.Fprintf(c.App.Writer, "%s: %s\n", result, msg)
		return nil
	}
	fmt.Fprintln(c.App.Writer, result)
	return nil
}

func runBomAdd(c *cli.Context, s *services) error {
	set, component, err := productPair(c, s)
	if err != nil {
		return err
	}
	qty, err := decimalFlag(c, "qty")
	if err != nil {
		return err
	}
	edge, err := s.Boms.AddComponent(c.Context, set.ID, component.ID, qty)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s += %s x %s\n", set.SKU, edge.Quantity.String(), component.SKU)
	return nil
}

func runBomRemove(c *cli.Context, s *services) error {
	set, component, err := productPair(c, s)
	if err != nil {
		return err
	}
	if err := s.Boms.RemoveComponent(c.Context, set.ID, component.ID); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s -= %s\n", set.SKU, component.SKU)
	return nil
}

func runBomExplode(c *cli.Context, s *services) error {
	if c.NArg() < 1 {
		return cli.Exit("product required", 2)
	}
	product, err := s.Products.FindProductBySKU(c.Context, c.Args().Get(0))
	if err != nil {
		return err
	}
	qty, err := decimalFlag(c, "qty")
	if err != nil {
		return err
	}
	components, err := s.Boms.Explode(c.Context, product.ID, qty)
	if err != nil {
		return err
	}
	for _, comp := range components {
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", comp.ProductID, comp.Quantity.String())
	}
	return nil
}

// productPair looks up the two SKUs given as arguments
func productPair(c *cli.Context, s *services) (*inventory.Product, *inventory.Product, error) {
	if c.NArg() < 2 {
		return nil, nil, cli.Exit("set and component SKUs required", 2)
	}
	set, err := s.Products.FindProductBySKU(c.Context, c.Args().Get(0))
	if err != nil {
		return nil, nil, fmt.Errorf("set %s: %w", c.Args().Get(0), err)
	}
	component, err := s.Products.FindProductBySKU(c.Context, c.Args().Get(1))
	if err != nil {
		return nil, nil, fmt.Errorf("component %s: %w", c.Args().Get(1), err)
	}
	return set, component, nil
}

func uuidArg(c *cli.Context, i int, name string) (uuid.UUID, error) {
	if c.NArg() <= i {
		return uuid.Nil, cli.Exit(name+" required", 2)
	}
	id, err := uuid.Parse(c.Args().Get(i))
	if err != nil {
		return uuid.Nil, cli.Exit(fmt.Sprintf("invalid %s: %v", name, err), 2)
	}
	return id, nil
}

func decimalFlag(c *cli.Context, name string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.String(name))
	if err != nil {
		return decimal.Zero, cli.Exit(fmt.Sprintf("invalid --%s: %v", name, err), 2)
	}
	return d, nil
}
