// Command licensectl manages records in the SQL license store.
//
//	licensectl add -key MNGO-... -org "Acme" -type full -expiry 2027-12-31 -products studio,cli
//	licensectl list
//	licensectl remove -key MNGO-...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"downloadgate/internal/license/models"
	licensestore "downloadgate/internal/license/store"
	"downloadgate/internal/platform/config"
	"downloadgate/internal/platform/database"
	"downloadgate/internal/platform/logger"
	"downloadgate/pkg/platform/privacy"
)

const usage = `usage: licensectl [-driver sqlite|postgres] [-dsn DSN] <command> [flags]

commands:
  add     create a license record
  list    print all license records with masked keys
  remove  delete a license record by key
`

type store interface {
	Create(ctx context.Context, l *models.License) error
	List(ctx context.Context) ([]*models.License, error)
	Delete(ctx context.Context, key string) error
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "licensectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("licensectl", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	driver := global.String("driver", envOr("DOWNLOADGATE_LICENSE_DRIVER", database.DriverSQLite), "database driver")
	dsn := global.String("dsn", envOr("DOWNLOADGATE_LICENSE_DSN", "file:marengo.db"), "database DSN")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	log := logger.New(config.LoggingConfig{Level: "warn", Format: "text"})
	db, err := database.Open(ctx, *driver, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db, *driver, log); err != nil {
		return err
	}
	s := licensestore.NewSQLStore(db, *driver)

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "add":
		return add(ctx, s, rest, out)
	case "list":
		return list(ctx, s, out)
	case "remove":
		return remove(ctx, s, rest, out)
	}
	global.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func add(ctx context.Context, s store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	key := fs.String("key", "", "license key")
	org := fs.String("org", "", "organization name")
	typ := fs.String("type", "", "license type")
	expiry := fs.String("expiry", "", "expiry date, YYYY-MM-DD")
	products := fs.String("products", "", "comma-separated product ids")
	contact := fs.String("contact", "", "support contact")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lt, err := models.ParseLicenseType(*typ)
	if err != nil {
		return err
	}
	l, err := models.NewLicense(*key, *org, lt, *expiry, strings.Split(*products, ","), *contact)
	if err != nil {
		return err
	}
	if err := s.Create(ctx, l); err != nil {
		return err
	}
	fmt.Fprintf(out, "created license %s for %s\n", privacy.MaskKey(l.Key), l.Organization)
	return nil
}

func list(ctx context.Context, s store, out io.Writer) error {
	licenses, err := s.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tORGANIZATION\tTYPE\tEXPIRES\tPRODUCTS")
	for _, l := range licenses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			privacy.MaskKey(l.Key), l.Organization, l.Type,
			l.Expiry.Format(models.ExpiryLayout), strings.Join(l.Products, ","))
	}
	return tw.Flush()
}

func remove(ctx context.Context, s store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	key := fs.String("key", "", "license key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("-key is required")
	}
	if err := s.Delete(ctx, *key); err != nil {
		return err
	}
	fmt.Fprintf(out, "removed license %s\n", privacy.MaskKey(*key))
	return nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
