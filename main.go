// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/fawa-io/codedpad/pkg/config"
	"github.com/fawa-io/codedpad/pkg/cors"
	"github.com/fawa-io/codedpad/pkg/fwlog"
	"github.com/fawa-io/codedpad/pkg/storage"
	"github.com/fawa-io/codedpad/service/share"
)

func main() {
	if err := config.InitConfig(); err != nil {
		fwlog.Fatalf("Failed to initialize configuration: %v", err)
	}
	cfg := config.Get()

	level, err := fwlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fwlog.Warnf("Invalid log level in config: %v", err)
	}
	fwlog.SetLevel(level)

	ctx := context.Background()
	presigner, err := newPresigner(ctx, cfg.Storage)
	if err != nil {
		fwlog.Fatalf("Failed to set up object storage: %v", err)
	}
	meta, err := newMetadataStore(ctx, cfg.Metadata)
	if err != nil {
		fwlog.Fatalf("Failed to set up metadata store: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := share.NewMetrics(reg)

	svc := share.NewService(presigner, meta, policyFrom(cfg.Upload), share.WithMetrics(metrics))
	config.OnChange(func(c config.Config) {
		svc.SetPolicy(policyFrom(c.Upload))
		fwlog.Infof("Upload policy reloaded: maxSize=%d types=%v", c.Upload.MaxSize, c.Upload.AllowedTypes)
	})

	// Register all handlers
	mux := http.NewServeMux()
	rpcProcedure, rpcHandler := share.NewRPCHandler(svc)
	mux.Handle(rpcProcedure, rpcHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", share.NewHTTPHandler(svc, metrics))

	useTLS := cfg.CertFile != "" && cfg.KeyFile != ""
	handler := cors.NewCORS(cfg.CORSOrigins...).Handler(mux)
	if !useTLS {
		// Connect and gRPC clients still get HTTP/2 over cleartext.
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fwlog.Info("Shutting down server...")

		// Set timeout for HTTP server shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Shutdown does not track hijacked WebSocket connections.
		drained := make(chan error, 1)
		srv.RegisterOnShutdown(func() { drained <- svc.Drain(ctx) })

		if err := srv.Shutdown(ctx); err != nil {
			fwlog.Errorf("Server shutdown error: %v", err)
		}
		if err := <-drained; err != nil {
			fwlog.Warnf("Watchers did not close in time: %v", err)
		}
		if err := svc.Close(); err != nil {
			fwlog.Errorf("Error closing metadata store: %v", err)
		}
	}()

	fwlog.Infof("Server starting on %v (tls=%v, storage=%s, metadata=%s)",
		cfg.Addr, useTLS, cfg.Storage.Driver, cfg.Metadata.Driver)

	if useTLS {
		err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		fwlog.Fatalf("Failed to start server: %v", err)
	}
	<-done
	fwlog.Info("Server shutdown complete")
}

func policyFrom(u config.UploadConfig) share.Policy {
	return share.Policy{
		MaxSize:        u.MaxSize,
		AllowedTypes:   u.AllowedTypes,
		UploadExpiry:   u.UploadExpiry,
		DownloadExpiry: u.DownloadExpiry,
	}
}

func newPresigner(ctx context.Context, s config.StorageConfig) (storage.ObjectPresigner, error) {
	switch s.Driver {
	case config.DriverS3:
		awsCfg, err := storage.LoadAWSConfig(ctx, s.Region, s.AccessKeyID, s.SecretAccessKey)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Presigner(awsCfg, s.Bucket, endpointURL(s.Endpoint, s.UseSSL), s.UsePathStyle), nil
	case config.DriverMinio:
		p, err := storage.NewMinioPresigner(storage.MinioOptions{
			Endpoint:        s.Endpoint,
			AccessKeyID:     s.AccessKeyID,
			SecretAccessKey: s.SecretAccessKey,
			Bucket:          s.Bucket,
			Region:          s.Region,
			UseSSL:          s.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if s.CreateBucket {
			if err := p.EnsureBucket(ctx); err != nil {
				return nil, err
			}
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", s.Driver)
	}
}

func newMetadataStore(ctx context.Context, m config.MetadataConfig) (storage.MetadataStore, error) {
	switch m.Driver {
	case config.DriverDynamoDB:
		awsCfg, err := storage.LoadAWSConfig(ctx, m.Region, "", "")
		if err != nil {
			return nil, err
		}
		return storage.NewDynamoDBStorage(awsCfg, m.Table, m.Endpoint), nil
	case config.DriverRedis:
		return storage.NewDragonflyStorage(ctx, storage.DragonflyOptions{
			Addr:     m.Addr,
			Password: m.Password,
			DB:       m.DB,
			TTL:      m.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown metadata driver %q", m.Driver)
	}
}

// endpointURL turns a MinIO style host:port endpoint into the URL the AWS
// SDK expects.
func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
