// Command orderdesk is the operator tool of the order desk. It initializes
// the store and runs user and order operations under the actor carried by
// a session token (see cmd/authentication).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gartstein/orderdesk/internal/orders/auth"
	"github.com/gartstein/orderdesk/internal/orders/config"
	"github.com/gartstein/orderdesk/internal/orders/controller"
	"github.com/gartstein/orderdesk/internal/orders/db"
	"github.com/gartstein/orderdesk/internal/orders/events"
	"github.com/gartstein/orderdesk/internal/orders/models"
	"go.uber.org/zap"
)

const usage = `usage: orderdesk [-config path] <command> [flags]

commands:
  init          create missing tables and seed the administrator
  create-user   -username u -password p [-admin]
  orders        [-status OPEN,IN_PROGRESS] [-company id] [-all]
  open          -company id -service id -title t -description d
  transition    -id id -status s
  reopen        -id id

Every command except init reads the session token from ORDERDESK_TOKEN.
`

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	repo     *db.Repository
	producer controller.EventProducer
	issuer   *auth.TokenIssuer
}

func main() {
	logger := initLogger()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	configPath := flag.String("config", config.DefaultPath, "configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.close()

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Error("command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		a.close()
		os.Exit(1)
	}
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, _ := zap.NewProduction()
	return logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	repo, err := db.NewRepository(ctx, cfg.Database(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		producer: events.Nop{},
		issuer:   auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewProducer(cfg.KafkaBrokers, logger, cfg.Topic)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("failed to initialize Kafka producer: %w", err)
		}
		a.producer = producer
	}
	return a, nil
}

func (a *app) close() {
	if p, ok := a.producer.(*events.Producer); ok {
		p.Close()
		a.producer = events.Nop{}
	}
	if a.repo != nil {
		_ = a.repo.Close()
		a.repo = nil
	}
}

func (a *app) options() []controller.Option {
	return []controller.Option{
		controller.WithOperationTimeout(a.cfg.OperationTimeout),
		controller.WithMaxRetries(a.cfg.MaxRetries),
		controller.WithHashCost(a.cfg.BcryptCost),
	}
}

// session resolves the actor from ORDERDESK_TOKEN.
func (a *app) session(ctx context.Context) (context.Context, error) {
	token := os.Getenv("ORDERDESK_TOKEN")
	if token == "" {
		return nil, errors.New("ORDERDESK_TOKEN is not set; run the authentication command first")
	}
	actor, err := a.issuer.Parse(token)
	if err != nil {
		return nil, err
	}
	return auth.WithActor(ctx, actor), nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	if command == "init" {
		// NewRepository already initialized the store
		a.logger.Info("store initialized", zap.String("driver", a.cfg.DBDriver))
		return nil
	}

	ctx, err := a.session(ctx)
	if err != nil {
		return err
	}

	switch command {
	case "create-user":
		return a.createUser(ctx, args)
	case "orders":
		return a.listOrders(ctx, args)
	case "open":
		return a.openOrder(ctx, args)
	case "transition":
		return a.transition(ctx, args)
	case "reopen":
		return a.reopen(ctx, args)
	}
	return fmt.Errorf("unknown command %q", command)
}

func (a *app) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "initial password")
	isAdmin := fs.Bool("admin", false, "grant administrator rights")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := controller.NewAuthService(a.repo, a.producer, a.logger, a.options()...)
	user, err := svc.CreateUser(ctx, *username, *password, *isAdmin)
	if err != nil {
		return err
	}
	return printJSON(user)
}

func (a *app) listOrders(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("orders", flag.ContinueOnError)
	statuses := fs.String("status", "", "comma separated statuses")
	companyID := fs.Int64("company", 0, "only orders of this company")
	all := fs.Bool("all", false, "include closed orders")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := models.DefaultOrderFilter()
	if *all {
		filter.Statuses = nil
	}
	if *statuses != "" {
		filter.Statuses = nil
		for _, s := range strings.Split(*statuses, ",") {
			st, ok := models.ParseStatus(s)
			if !ok {
				st = models.Status(s)
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if *companyID > 0 {
		filter.CompanyID = companyID
	}

	svc := controller.NewOrderService(a.repo, a.producer, a.logger, a.options()...)
	orders, err := svc.List(ctx, filter)
	if err != nil {
		return err
	}
	return printJSON(orders)
}

func (a *app) openOrder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	companyID := fs.Int64("company", 0, "company id")
	serviceTypeID := fs.Int64("service", 0, "service type id")
	title := fs.String("title", "", "short title")
	description := fs.String("description", "", "what needs to be done")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := controller.NewOrderService(a.repo, a.producer, a.logger, a.options()...)
	order, err := svc.Open(ctx, *companyID, *serviceTypeID, *title, *description)
	if err != nil {
		return err
	}
	return printJSON(order)
}

func (a *app) transition(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transition", flag.ContinueOnError)
	id := fs.Int64("id", 0, "order id")
	status := fs.String("status", "", "target status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := controller.NewOrderService(a.repo, a.producer, a.logger, a.options()...)
	order, err := svc.Transition(ctx, *id, *status)
	if err != nil {
		return err
	}
	return printJSON(order)
}

func (a *app) reopen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reopen", flag.ContinueOnError)
	id := fs.Int64("id", 0, "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := controller.NewOrderService(a.repo, a.producer, a.logger, a.options()...)
	order, err := svc.Reopen(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(order)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
