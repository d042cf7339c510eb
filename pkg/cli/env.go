package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/startupvista/vista-go/pkg/api"
	"github.com/startupvista/vista-go/pkg/auth"
	"github.com/startupvista/vista-go/pkg/config"
	"github.com/startupvista/vista-go/pkg/federated"
	"github.com/startupvista/vista-go/pkg/tokenstore"
)

// environment wires the configured client stack for one command run.
type environment struct {
	cfg     *config.Config
	logger  *logrus.Logger
	store   *tokenstore.FileStore
	client  *api.Client
	service *auth.Service
}

// newEnvironment loads configuration and builds the client stack. The
// federated bridge is only discovered when a command needs it, since
// discovery is a network round-trip.
func newEnvironment(ctx context.Context, withFederated bool) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)

	credsPath := cfg.CredentialsPath
	if credsPath == "" {
		credsPath, err = tokenstore.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	store, err := tokenstore.NewFileStore(credsPath)
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(cfg.API.BaseURL, store,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	opts := []auth.ServiceOption{}
	if cfg.Keepalive > 0 {
		opts = append(opts, auth.WithKeepalive(cfg.Keepalive), auth.WithCredentialWatch())
	}
	if withFederated {
		if !cfg.OIDC.Enabled() {
			return nil, fmt.Errorf("federated sign-in is not configured (set oidc.issuer_url and oidc.client_id)")
		}
		bridge, berr := federated.NewBridge(ctx, federated.Config{
			IssuerURL:    cfg.OIDC.IssuerURL,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			Scopes:       cfg.OIDC.Scopes,
			CallbackAddr: cfg.OIDC.CallbackAddr,
		}, client, logger)
		if berr != nil {
			return nil, berr
		}
		opts = append(opts, auth.WithFederatedBridge(bridge))
	}

	service := auth.NewService(client, store, logger, opts...)

	return &environment{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		client:  client,
		service: service,
	}, nil
}

// start runs the start-up session verification.
func (e *environment) start(ctx context.Context) error {
	return e.service.Start(ctx)
}

// promptLine reads one line from stdin after printing the prompt.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
