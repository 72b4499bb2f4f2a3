package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"horse.fit/cargoscoop/internal/cli"
	"horse.fit/cargoscoop/internal/places"
	"horse.fit/cargoscoop/internal/store"
)

// catalog is what the resolve command asks.
type catalog interface {
	Resolve(text string, strict bool) (places.Match, bool)
	ResolveSide(text string, side places.Side) (places.Match, bool)
	ResolveRoute(origin, destination string) places.RouteMatch
	MatchGoods(text string) (places.Good, bool)
}

type resolveQuery struct {
	text   string
	to     string
	side   string
	strict bool
	goods  bool
}

func runResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	var q resolveQuery
	fs.StringVar(&q.to, "to", "", "Destination text; resolves <text> -> <to> as a route")
	fs.StringVar(&q.side, "side", "", "Resolve as a route side: origin or destination")
	fs.BoolVar(&q.strict, "strict", false, "Require a strict similarity match")
	fs.BoolVar(&q.goods, "goods", false, "Match the text against the goods dictionary")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	q.text = strings.TrimSpace(strings.Join(fs.Args(), " "))
	if q.text == "" {
		fmt.Fprintln(os.Stderr, "usage: cargoscoop resolve [flags] <text>")
		return 2
	}
	switch q.side {
	case "", "origin", "destination":
	default:
		fmt.Fprintln(os.Stderr, "--side must be origin or destination")
		return 2
	}

	rt, code := openRuntime("resolve", envLoader)
	if rt == nil {
		return code
	}
	defer rt.Close()

	st, err := store.New(rt.pool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	c, err := st.LoadCatalog(context.Background(), places.WithThreshold(rt.cfg.PlaceSimilarityThreshold))
	if err != nil {
		rt.logger.Error().Err(err).Msg("load place catalog failed")
		fmt.Fprintf(os.Stderr, "Failed to load place catalog: %v\n", err)
		return 1
	}

	if !resolve(os.Stdout, c, q) {
		return 1
	}
	return 0
}

// resolve prints what the catalog makes of q and reports whether anything
// matched.
func resolve(w io.Writer, c catalog, q resolveQuery) bool {
	switch {
	case q.goods:
		g, ok := c.MatchGoods(q.text)
		if !ok {
			fmt.Fprintf(w, "no goods match %q\n", q.text)
			return false
		}
		fmt.Fprintf(w, "goods %d %s\n", g.ID, g.Name)
		return true
	case q.to != "":
		r := c.ResolveRoute(q.text, q.to)
		fmt.Fprintf(w, "origin:      %s\n", describe(r.Origin))
		fmt.Fprintf(w, "destination: %s\n", describe(r.Destination))
		return r.Complete()
	}

	var (
		m  places.Match
		ok bool
	)
	switch q.side {
	case "origin":
		m, ok = c.ResolveSide(q.text, places.SideOrigin)
	case "destination":
		m, ok = c.ResolveSide(q.text, places.SideDestination)
	default:
		m, ok = c.Resolve(q.text, q.strict)
	}
	if !ok {
		fmt.Fprintf(w, "no place matches %q\n", q.text)
		return false
	}
	fmt.Fprintln(w, describe(&m))
	return true
}

func describe(m *places.Match) string {
	if m == nil {
		return "-"
	}
	return fmt.Sprintf("%s %d %s (variant %q, country %d, similarity %.2f)",
		m.Kind, m.ID, m.Name, m.Variant, m.CountryOf(), m.Similarity)
}
