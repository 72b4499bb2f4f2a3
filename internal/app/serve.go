package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/cargoscoop/internal/cli"
)

// httpFlags are the listener flags shared by serve and run. Empty or zero
// values fall back to HTTP_HOST and HTTP_PORT.
type httpFlags struct {
	host            *string
	port            *int
	readTimeout     *time.Duration
	writeTimeout    *time.Duration
	shutdownTimeout *time.Duration
}

func addHTTPFlags(fs *flag.FlagSet) httpFlags {
	return httpFlags{
		host:            fs.String("host", "", "Host interface to bind (default HTTP_HOST)"),
		port:            fs.Int("port", 0, "HTTP port (default HTTP_PORT)"),
		readTimeout:     fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout"),
		writeTimeout:    fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout"),
		shutdownTimeout: fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout"),
	}
}

func (f httpFlags) validate() error {
	if *f.port != 0 {
		return validatePort(*f.port, "--port")
	}
	return nil
}

func (f httpFlags) listen(rt *runtime) (string, int) {
	host, port := rt.cfg.HTTPHost, rt.cfg.HTTPPort
	if *f.host != "" {
		host = *f.host
	}
	if *f.port != 0 {
		port = *f.port
	}
	return host, port
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	hf := addHTTPFlags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := hf.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	rt, code := openRuntime("serve", envLoader)
	if rt == nil {
		return code
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	svc, err := wire(ctx, rt)
	if err != nil {
		rt.logger.Error().Err(err).Msg("serve setup failed")
		fmt.Fprintf(os.Stderr, "Serve setup failed: %v\n", err)
		return 1
	}
	defer svc.Close()

	host, port := hf.listen(rt)
	srv := newAPIServer(rt, svc, host, port, *hf.readTimeout, *hf.writeTimeout, *hf.shutdownTimeout)
	if err := srv.Start(ctx); err != nil {
		rt.logger.Error().Err(err).Str("host", host).Int("port", port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}
	return 0
}
