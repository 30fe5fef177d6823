package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/fruitsalade/filebrowser/internal/config"
	"github.com/fruitsalade/filebrowser/internal/logging"
	"github.com/fruitsalade/filebrowser/internal/metrics"
	"github.com/fruitsalade/filebrowser/internal/session"
	"github.com/fruitsalade/filebrowser/pkg/client"
	"github.com/fruitsalade/filebrowser/pkg/policy"
	"github.com/fruitsalade/filebrowser/pkg/retry"
)

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	client  *client.Client
	session *session.Manager
	logger  *zap.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	metricsServer *http.Server
}

// newApp builds the client and session. useSaved controls whether a saved
// token file is consulted when no other credentials are configured.
func newApp(cfg *config.Config, in io.Reader, out, errOut io.Writer, useSaved bool) (*app, error) {
	a := &app{cfg: cfg, in: in, out: out, errOut: errOut, logger: logging.L().Named("cli")}

	retryCfg := retry.None()
	if cfg.RetryAttempts > 1 {
		retryCfg = retry.WithAttempts(cfg.RetryAttempts)
	}

	a.client = client.New(client.Config{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		RetryConfig: retryCfg,
		Middleware: []func(http.RoundTripper) http.RoundTripper{
			metrics.Transport,
			logging.Transport,
		},
	})
	if err := a.applyAuth(useSaved); err != nil {
		return nil, err
	}

	a.session = session.New(a.client, policy.New(cfg.MaxFileSize, cfg.AllowedTypes),
		session.WithLogger(logging.L()),
		session.WithUploadConcurrency(cfg.UploadConcurrency),
	)
	return a, nil
}

// applyAuth picks credentials in order: basic auth from username/password,
// an explicit token, then a saved token file.
func (a *app) applyAuth(useSaved bool) error {
	cfg := a.cfg
	if cfg.Username != "" {
		password := cfg.Password
		if password == "" {
			p, err := a.promptSecret("Password: ")
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			password = p
		}
		a.client.SetBasicAuth(cfg.Username, password)
		return nil
	}

	if cfg.Token != "" {
		a.client.SetAuthToken(cfg.Token)
		return nil
	}
	if !useSaved {
		return nil
	}

	tf, err := client.LoadToken(cfg.TokenFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if tf.IsExpired(0) {
		return fmt.Errorf("saved token has expired. Run 'filebrowser login' to authenticate")
	}
	a.client.SetAuthToken(tf.Token)
	a.logger.Debug("using saved token",
		zap.String("username", tf.Username),
		zap.String("server", tf.Server),
	)
	return nil
}

// promptSecret reads a line without echo when stdin is a terminal, or a
// plain line otherwise.
func (a *app) promptSecret(prompt string) (string, error) {
	fmt.Fprint(a.errOut, prompt)
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(a.in)
}

// readLine reads up to a newline one byte at a time so nothing past the
// line is consumed from in.
func readLine(in io.Reader) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			line = append(line, buf[0])
		}
		if err == io.EOF {
			if len(line) == 0 {
				return "", io.ErrUnexpectedEOF
			}
			break
		}
		if err != nil {
			return "", err
		}
	}
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return string(line), nil
}

// startMetrics serves /metrics on cfg.MetricsAddr when set.
func (a *app) startMetrics() {
	if a.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsServer = &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Info("metrics server listening", logging.String("addr", a.cfg.MetricsAddr))
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server error", logging.Err(err))
		}
	}()
}

func (a *app) close() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			logging.Warn("metrics server shutdown", logging.Err(err))
		}
	}
	logging.Sync()
}
