// Command lenscart is a CLI client for the lenscart storefront API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lenscart/lenscart/internal/cart"
	"github.com/lenscart/lenscart/internal/config"
	"github.com/lenscart/lenscart/internal/credstore"
	"github.com/lenscart/lenscart/internal/gateway"
	"github.com/lenscart/lenscart/internal/guard"
	"github.com/lenscart/lenscart/internal/model"
	"github.com/lenscart/lenscart/internal/notify"
	"github.com/lenscart/lenscart/internal/session"
	"github.com/lenscart/lenscart/internal/wishlist"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `lenscart CLI
Usage:
  lenscart <cmd> [args]

Commands:
  version
  whoami
  login      -email <email> -password <pw>
  logout
  register   -name <name> -email <email> -password <pw> [-role <role>]
  verify     -email <email> -code <otp>
  resend     -email <email>
  forgot     -email <email>
  reset      -email <email> -code <otp> -password <new>
  profile    [-name <name>] [-address <addr>] [-phone <phone>]
  passwd     -current <pw> -new <pw>
  cart       show | add -id .. -name .. -price .. [-category ..] [-qty n]
             | rm -id .. | qty -id .. -n <qty>
             | lens -id .. [-type ..] [-option ..] [-lens-price ..] [-rx ..] [-none]
             | clear
  wishlist   show | add -id .. [-name ..] [-price ..] | rm -id .. | clear
  can        -target <path> [-roles a,b] [-customers-only]

Environment: LENSCART_BASE_URL, LENSCART_STORE_PATH, LENSCART_REDIS_ADDR, ...
`)
	os.Exit(2)
}

// app bundles the wired client core for command handlers.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	sessions *session.Manager
	cart     *cart.Synchronizer
	wishlist *wishlist.Synchronizer
}

// newApp wires config, store, gateway and the synchronizers, then
// restores any stored session.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}

	var log *zap.Logger
	if cfg.IsProduction() {
		log, _ = zap.NewProduction()
	} else {
		log, _ = zap.NewDevelopment()
	}

	var store credstore.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = credstore.NewRedis(rdb, cfg.RedisPrefix, cfg.WatchInterval)
	} else {
		store = credstore.NewFile(cfg.StorePath, cfg.WatchInterval)
	}

	api, err := gateway.New(cfg.BaseURL, &http.Client{Timeout: cfg.RequestTimeout}, store, log)
	if err != nil {
		return nil, err
	}

	notifier := notify.NewLogger(log)
	sessions := session.New(api, store, notifier, log)
	sessions.Restore(ctx)

	return &app{
		cfg:      cfg,
		log:      log,
		sessions: sessions,
		cart:     cart.NewSynchronizer(api, sessions, notifier, log),
		wishlist: wishlist.NewSynchronizer(api, sessions, notifier, log),
	}, nil
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	if cmd == "version" {
		fmt.Printf("lenscart %s (%s)\n", version, buildDate)
		return
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		fail(err)
	}
	defer func() { _ = a.log.Sync() }()

	switch cmd {
	case "whoami":
		s := a.sessions.Session()
		if s.Status != model.StatusAuthenticated {
			fmt.Println("anonymous")
			return
		}
		printJSON(s.User)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		_ = fs.Parse(args)
		need(*email != "" && *password != "", "-email and -password")

		u, err := a.sessions.Login(ctx, *email, *password)
		if err != nil {
			fail(err)
		}
		fmt.Printf("logged in as %s (%s)\n", u.Email, u.Role)

	case "logout":
		a.sessions.Logout(ctx, false)

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		role := fs.String("role", "", "requested role (optional)")
		_ = fs.Parse(args)
		need(*name != "" && *email != "" && *password != "", "-name, -email and -password")

		if err := a.sessions.Register(ctx, *name, *email, *password, model.Role(*role)); err != nil {
			fail(err)
		}
		fmt.Println("registered; verify with the emailed code")

	case "verify":
		fs := flag.NewFlagSet("verify", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		code := fs.String("code", "", "one-time code")
		_ = fs.Parse(args)
		need(*email != "" && *code != "", "-email and -code")

		u, err := a.sessions.VerifyOneTimeCode(ctx, *email, *code)
		if err != nil {
			fail(err)
		}
		fmt.Printf("verified; logged in as %s\n", u.Email)

	case "resend":
		fs := flag.NewFlagSet("resend", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		_ = fs.Parse(args)
		need(*email != "", "-email")
		if err := a.sessions.ResendOneTimeCode(ctx, *email); err != nil {
			fail(err)
		}

	case "forgot":
		fs := flag.NewFlagSet("forgot", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		_ = fs.Parse(args)
		need(*email != "", "-email")
		if err := a.sessions.SendResetCode(ctx, *email); err != nil {
			fail(err)
		}

	case "reset":
		fs := flag.NewFlagSet("reset", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		code := fs.String("code", "", "reset code")
		password := fs.String("password", "", "new password")
		_ = fs.Parse(args)
		need(*email != "" && *code != "" && *password != "", "-email, -code and -password")

		if err := a.sessions.VerifyResetCode(ctx, *email, *code); err != nil {
			fail(err)
		}
		if err := a.sessions.ResetPassword(ctx, *email, *code, *password); err != nil {
			fail(err)
		}

	case "profile":
		fs := flag.NewFlagSet("profile", flag.ExitOnError)
		name := fs.String("name", "", "display name")
		address := fs.String("address", "", "shipping address")
		phone := fs.String("phone", "", "phone number")
		_ = fs.Parse(args)

		partial := map[string]string{}
		for k, v := range map[string]string{"name": *name, "address": *address, "phone": *phone} {
			if v != "" {
				partial[k] = v
			}
		}
		if len(partial) == 0 {
			printJSON(a.sessions.Session().User)
			return
		}
		u, err := a.sessions.UpdateProfile(ctx, partial)
		if err != nil {
			fail(err)
		}
		printJSON(u)

	case "passwd":
		fs := flag.NewFlagSet("passwd", flag.ExitOnError)
		current := fs.String("current", "", "current password")
		next := fs.String("new", "", "new password")
		_ = fs.Parse(args)
		need(*current != "" && *next != "", "-current and -new")
		if err := a.sessions.UpdatePassword(ctx, *current, *next); err != nil {
			fail(err)
		}

	case "cart":
		a.cartCmd(ctx, args)

	case "wishlist":
		a.wishlistCmd(ctx, args)

	case "can":
		fs := flag.NewFlagSet("can", flag.ExitOnError)
		target := fs.String("target", "", "navigation target path")
		roles := fs.String("roles", "", "comma-separated allowed roles")
		customersOnly := fs.Bool("customers-only", false, "customer role required")
		_ = fs.Parse(args)
		need(*target != "", "-target")

		rule := guard.Rule{CustomersOnly: *customersOnly, AllowedRoles: parseRoles(*roles)}
		g := guard.New(a.sessions, notify.NewLogger(a.log))
		printJSON(g.Evaluate(rule, *target))

	default:
		usage()
	}
}

// cartCmd dispatches cart subcommands; the local state shown afterwards
// is the synchronizer's view after a full resync.
func (a *app) cartCmd(ctx context.Context, args []string) {
	if len(args) < 1 {
		usage()
	}
	if err := a.cart.Resync(ctx); err != nil {
		fail(err)
	}

	switch args[0] {
	case "show":
		printJSON(map[string]any{
			"lines":      a.cart.Lines(),
			"item_count": a.cart.ItemCount(),
			"lens_total": a.cart.LensTotal(),
			"cart_total": a.cart.CartTotal(),
		})
		return

	case "add":
		fs := flag.NewFlagSet("cart add", flag.ExitOnError)
		id := fs.String("id", "", "product id")
		name := fs.String("name", "", "product name")
		price := fs.Float64("price", 0, "unit price")
		category := fs.String("category", string(model.CategoryEyewear), "product category")
		qty := fs.Int("qty", 1, "quantity")
		_ = fs.Parse(args[1:])
		need(*id != "" && *name != "", "-id and -name")

		product := model.ProductRef{ID: *id, Name: *name, Price: *price, Category: model.Category(*category)}
		if err := a.cart.Add(ctx, product, *qty); err != nil {
			fail(err)
		}

	case "rm":
		fs := flag.NewFlagSet("cart rm", flag.ExitOnError)
		id := fs.String("id", "", "product id")
		_ = fs.Parse(args[1:])
		need(*id != "", "-id")
		if err := a.cart.Remove(ctx, *id); err != nil {
			fail(err)
		}

	case "qty":
		fs := flag.NewFlagSet("cart qty", flag.ExitOnError)
		id := fs.String("id", "", "product id")
		n := fs.Int("n", 1, "new quantity (0 removes)")
		_ = fs.Parse(args[1:])
		need(*id != "", "-id")
		if err := a.cart.SetQuantity(ctx, *id, *n); err != nil {
			fail(err)
		}
		a.cart.Wait()

	case "lens":
		fs := flag.NewFlagSet("cart lens", flag.ExitOnError)
		id := fs.String("id", "", "product id")
		typ := fs.String("type", "", "lens type (standard|prescription)")
		option := fs.String("option", "", "lens option name")
		price := fs.Float64("lens-price", 0, "lens surcharge")
		rx := fs.String("rx", "", "prescription id")
		none := fs.Bool("none", false, "clear the lens selection")
		_ = fs.Parse(args[1:])
		need(*id != "", "-id")

		var lens *model.LensOption
		if !*none {
			lens = &model.LensOption{
				Type:           model.LensOptionType(*typ),
				Option:         *option,
				Price:          *price,
				PrescriptionID: *rx,
			}
		}
		if err := a.cart.SetLensOption(ctx, *id, lens); err != nil {
			fail(err)
		}
		a.cart.Wait()

	case "clear":
		if err := a.cart.Clear(ctx); err != nil {
			fail(err)
		}

	default:
		usage()
	}
	printJSON(a.cart.Lines())
}

func (a *app) wishlistCmd(ctx context.Context, args []string) {
	if len(args) < 1 {
		usage()
	}
	if err := a.wishlist.Resync(ctx); err != nil {
		fail(err)
	}

	switch args[0] {
	case "show":

	case "add":
		fs := flag.NewFlagSet("wishlist add", flag.ExitOnError)
		id := fs.String("id", "", "product id")
		name := fs.String("name", "", "product name")
		price := fs.Float64("price", 0, "unit price")
		category := fs.String("category", string(model.CategoryEyewear), "product category")
		_ = fs.Parse(args[1:])
		need(*id != "", "-id")

		product := model.ProductRef{ID: *id, Name: *name, Price: *price, Category: model.Category(*category)}
		if err := a.wishlist.Add(ctx, product); err != nil {
			fail(err)
		}

	case "rm":
		fs := flag.NewFlagSet("wishlist rm", flag.ExitOnError)
		id := fs.String("id", "", "product id")
		_ = fs.Parse(args[1:])
		need(*id != "", "-id")
		if err := a.wishlist.Remove(ctx, *id); err != nil {
			fail(err)
		}

	case "clear":
		if err := a.wishlist.ClearAll(ctx); err != nil {
			fail(err)
		}

	default:
		usage()
	}
	printJSON(a.wishlist.Entries())
}

// ---- helpers ----

// parseRoles splits a comma-separated role list, dropping unknown names.
func parseRoles(s string) []model.Role {
	if s == "" {
		return nil
	}
	var roles []model.Role
	for _, part := range strings.Split(s, ",") {
		if r := model.Role(strings.TrimSpace(part)); r.Valid() {
			roles = append(roles, r)
		}
	}
	return roles
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func need(ok bool, what string) {
	if !ok {
		fmt.Fprintln(os.Stderr, "need "+what)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
