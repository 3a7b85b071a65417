package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"tutorcal/internal/api"
	"tutorcal/internal/capture"
	"tutorcal/internal/config"
	"tutorcal/internal/fetch"
	"tutorcal/internal/ics"
	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
	"tutorcal/internal/schedule"
	"tutorcal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	date        string
	capturePath string
	debug       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("tutorcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"window", conf.Window.Start+"-"+conf.Window.End,
		"refresh", conf.RefreshCron,
		"api", conf.API.BaseURL != "",
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	svc, err := newService(conf, flags.debug)
	if err != nil {
		appLog.Error("failed to build schedule service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		if err := runOnce(ctx, conf, svc, flags); err != nil {
			appLog.Error("single run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(ctx, conf, svc, flags); err != nil {
		appLog.Error("server failed", err)
		os.Exit(1)
	}
	appLog.Info("tutorcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/tutorcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print one day view as JSON (or capture it) and exit")
	flag.StringVar(&cfg.date, "date", "", "Day for -once, YYYY-MM-DD (default today)")
	flag.StringVar(&cfg.capturePath, "capture", "", "Write a PNG of the day page here (on every refresh when serving)")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging and ./cache instead of the configured cache dir")

	flag.Parse()

	return cfg
}

// newService wires the configured lesson and calendar sources. Either may be
// absent; the interfaces are left nil in that case.
func newService(conf *config.Config, debug bool) (*schedule.Service, error) {
	ws, we, err := conf.WindowMinutes()
	if err != nil {
		return nil, err
	}

	cacheDir := conf.CacheDir
	if debug {
		cacheDir = "./cache"
	}
	fetcher := fetch.NewFetcher(cacheDir, nil)
	loc := conf.Location()

	opts := schedule.Options{
		Location:    loc,
		WindowStart: ws,
		WindowEnd:   we,
		CacheTTL:    conf.CacheTTL(),
	}

	if conf.API.BaseURL != "" {
		client, err := api.NewClient(conf.API.BaseURL, conf.API.Token, fetcher)
		if err != nil {
			return nil, err
		}
		opts.Lessons = client
		opts.Packages = client
	}

	if len(conf.ICS) > 0 {
		sources := make([]ics.Source, 0, len(conf.ICS))
		for _, c := range conf.ICS {
			if c.URL == "" {
				continue
			}
			id := c.ID
			if id == "" {
				id = c.Name
			}
			if id == "" {
				id = c.URL
			}
			sources = append(sources, ics.Source{ID: id, Name: c.Name, URL: c.URL})
		}
		opts.Calendars = ics.NewFeeds(fetcher, sources, loc)
	}

	if opts.Lessons == nil && opts.Calendars == nil {
		appLog.Warn("no api.base_url and no ics sources configured; timelines will be empty")
	}
	return schedule.New(opts)
}

func runOnce(ctx context.Context, conf *config.Config, svc *schedule.Service, flags flagConfig) error {
	day := svc.Today()
	if flags.date != "" {
		d, err := time.ParseInLocation(model.DateLayout, flags.date, svc.Location())
		if err != nil {
			return err
		}
		day = d
	}

	if flags.capturePath == "" {
		view, err := svc.Day(ctx, day)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	// Capturing needs the day page served; bind an ephemeral port so a
	// running instance is not disturbed.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: web.NewServer(conf, svc, flags.capturePath).Handler()}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("capture server failed", err)
		}
	}()
	defer srv.Close()

	return captureDay(ctx, conf, loopbackURL(ln.Addr()), day, flags.capturePath)
}

func runServer(ctx context.Context, conf *config.Config, svc *schedule.Service, flags flagConfig) error {
	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return err
	}
	// Captures go through loopback; a wildcard listen address is not
	// something a browser can navigate to.
	baseURL := loopbackURL(ln.Addr())

	s := web.NewServer(conf, svc, flags.capturePath)
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", ln.Addr().String(), "base_url", baseURL)
		errCh <- srv.Serve(ln)
	}()

	c := cron.New(cron.WithLocation(svc.Location()))
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		refresh(ctx, svc, conf, baseURL, flags.capturePath)
	}); err != nil {
		_ = srv.Close()
		return err
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	// The listener is bound, so the first capture can reach the page.
	go refresh(ctx, svc, conf, baseURL, flags.capturePath)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loopbackURL returns an http base URL for reaching addr from this host.
// Unspecified addresses (":8080", "0.0.0.0:8080", "[::]:8080") map to the
// loopback address of the same family.
func loopbackURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String()
	}
	ip := net.ParseIP(host)
	switch {
	case host == "" || (ip != nil && ip.IsUnspecified() && ip.To4() != nil):
		host = "127.0.0.1"
	case ip != nil && ip.IsUnspecified():
		host = "::1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// refresh rebuilds today's view and, when a capture path is set, re-renders
// the preview PNG from the running server at baseURL.
func refresh(ctx context.Context, svc *schedule.Service, conf *config.Config, baseURL, capturePath string) {
	if err := svc.Refresh(ctx); err != nil {
		appLog.Error("refresh failed", err)
		return
	}
	appLog.Info("refresh completed", "date", svc.Today().Format(model.DateLayout))

	if capturePath == "" {
		return
	}
	if err := captureDay(ctx, conf, baseURL, svc.Today(), capturePath); err != nil {
		appLog.Error("preview capture failed", err)
	}
}

func captureDay(ctx context.Context, conf *config.Config, baseURL string, day time.Time, out string) error {
	opts := capture.Options{
		URL:        baseURL + "/day?date=" + day.Format(model.DateLayout),
		OutputPath: out,
	}
	if conf.BasicAuth != nil {
		opts.Username = conf.BasicAuth.Username
		opts.Password = conf.BasicAuth.Password
	}
	if err := capture.DayPNG(ctx, opts); err != nil {
		return err
	}
	appLog.Info("day captured", "date", day.Format(model.DateLayout), "path", out)
	return nil
}
