package commands

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/svcmodel/svcmodel-go/pkg/cert"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/resolve"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/servicehost"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
)

type serveOptions struct {
	httpAddr  string
	httpsAddr string
	tcpAddr   string
	wsAddr    string
	pipeDir   string
	pipeRes   int

	certFile   string
	keyFile    string
	caOut      string
	username   string
	password   string
	messageKey string

	advertise bool
	instance  string
}

func newServeCommand(global *globalOptions) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the loopback echo service host",
		Long: `Run the echo service on every configured transport until interrupted.

Without --cert and --key an https listener gets a self-signed certificate;
--ca-out writes its CA so clients can trust it.`,
		Example: `  svcctl serve --http 127.0.0.1:8080 --tcp 127.0.0.1:8808
  svcctl serve --https 127.0.0.1:8443 --user testuser --password testpassword --ca-out ca.pem`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return o.run(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), global)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.httpAddr, "http", "127.0.0.1:8080", "HTTP listen address (empty disables)")
	f.StringVar(&o.httpsAddr, "https", "", "HTTPS listen address")
	f.StringVar(&o.tcpAddr, "tcp", "127.0.0.1:8808", "net.tcp listen address (empty disables)")
	f.StringVar(&o.wsAddr, "ws", "", "WebSocket listen address")
	f.StringVar(&o.pipeDir, "pipe-dir", "", "Directory for the named pipe socket")
	f.IntVar(&o.pipeRes, "pipe", 0, "Named pipe resource number (0 disables)")
	f.StringVar(&o.certFile, "cert", "", "Service certificate (PEM)")
	f.StringVar(&o.keyFile, "key", "", "Service private key (PEM)")
	f.StringVar(&o.caOut, "ca-out", "", "Write the self-signed CA certificate to this file")
	f.StringVar(&o.username, "user", "testuser", "Accepted username for https-basic")
	f.StringVar(&o.password, "password", "testpassword", "Accepted password for https-basic")
	f.StringVar(&o.messageKey, "message-key", "", "Base64 key enabling /message with message security")
	f.BoolVar(&o.advertise, "advertise", false, "Advertise listeners over mDNS")
	f.StringVar(&o.instance, "instance", "svcctl", "mDNS instance name prefix")
	return cmd
}

func (o *serveOptions) run(ctx context.Context, out, errOut io.Writer, global *globalOptions) error {
	obs, err := global.observe(errOut, log.RoleService)
	if err != nil {
		return err
	}
	defer obs.closer()

	cfg := servicehost.Config{
		HTTPAddr:       o.httpAddr,
		HTTPSAddr:      o.httpsAddr,
		TCPAddr:        o.tcpAddr,
		WSAddr:         o.wsAddr,
		PipeDir:        o.pipeDir,
		PipeResource:   o.pipeRes,
		Logger:         obs.logger,
		ProtocolLogger: obs.protocol,
		Diagnostics:    obs.diag,
	}
	if o.httpsAddr != "" {
		tlsCfg, err := o.serverTLS()
		if err != nil {
			return err
		}
		cfg.TLS = tlsCfg
		cfg.Validator = security.StaticCredentials{o.username: o.password}
	}
	if o.messageKey != "" {
		if cfg.MessageKey, err = base64.StdEncoding.DecodeString(o.messageKey); err != nil {
			return fmt.Errorf("invalid --message-key: %w", err)
		}
	}
	if o.advertise {
		cfg.Advertiser = resolve.NewMDNSAdvertiser(resolve.AdvertiserConfig{Instance: o.instance})
	}

	host, err := servicehost.New(cfg)
	if err != nil {
		return err
	}
	if err := host.Start(ctx); err != nil {
		return err
	}
	printEndpoints(out, host, cfg.MessageKey != nil)

	<-ctx.Done()
	fmt.Fprintln(out, "Stopping...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return host.Stop(stopCtx)
}

func (o *serveOptions) serverTLS() (*transport.TLSConfig, error) {
	if o.certFile != "" || o.keyFile != "" {
		tc, err := cert.LoadTLSCertificate(o.certFile, o.keyFile)
		if err != nil {
			return nil, err
		}
		return &transport.TLSConfig{Certificates: []tls.Certificate{tc}}, nil
	}

	bundle, err := cert.NewBundle([]string{"127.0.0.1", "localhost"}, "svcctl-client")
	if err != nil {
		return nil, err
	}
	if o.caOut != "" {
		if err := cert.WriteCertFile(o.caOut, bundle.CA.Certificate); err != nil {
			return nil, err
		}
	}
	return &transport.TLSConfig{Certificates: []tls.Certificate{bundle.Server.TLSCertificate()}}, nil
}

func printEndpoints(w io.Writer, host *servicehost.Host, message bool) {
	tcpPaths := []string{servicehost.PathEcho}
	if message {
		tcpPaths = append(tcpPaths, servicehost.PathMessage)
	}
	routes := []struct {
		scheme transport.Scheme
		paths  []string
	}{
		{transport.SchemeHTTP, []string{servicehost.PathBasic, servicehost.PathCustom}},
		{transport.SchemeHTTPS, []string{servicehost.PathHTTPSBasic}},
		{transport.SchemeTCP, tcpPaths},
		{transport.SchemePipe, []string{servicehost.PathEcho}},
		{transport.SchemeWS, []string{servicehost.PathDuplex}},
	}
	fmt.Fprintln(w, "Endpoints:")
	for _, r := range routes {
		for _, p := range r.paths {
			if addr, err := host.Address(r.scheme, p); err == nil {
				fmt.Fprintf(w, "  %s\n", addr)
			}
		}
	}
}
