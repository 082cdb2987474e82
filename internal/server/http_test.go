package server_test

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kubev2v/vsphere-machinery/internal/config"
	"github.com/kubev2v/vsphere-machinery/internal/server"
	"github.com/kubev2v/vsphere-machinery/internal/server/middlewares"
)

var _ = Describe("HTTP Server", func() {
	var (
		cfg               *config.Configuration
		registerHandlerFn func(router *gin.RouterGroup)
		srv               *server.Server
		client            *http.Client
	)

	start := func() {
		var err error
		srv, err = server.NewServer(cfg, promhttp.Handler(), registerHandlerFn)
		Expect(err).NotTo(HaveOccurred())

		go func() {
			defer GinkgoRecover()
			Expect(srv.Start(context.TODO())).To(Succeed())
		}()
		time.Sleep(100 * time.Millisecond)
	}

	get := func(url, token string) (*http.Response, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		Expect(err).NotTo(HaveOccurred())
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return client.Do(req)
	}

	BeforeEach(func() {
		client = http.DefaultClient
		registerHandlerFn = func(router *gin.RouterGroup) {
			router.GET("/machines", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"machines": []string{}})
			})
		}
	})

	AfterEach(func() {
		if srv != nil {
			srv.Stop(context.TODO())
			srv = nil
		}
	})

	Context("dev server mode", func() {
		BeforeEach(func() {
			cfg = &config.Configuration{
				Server: config.Server{ServerMode: server.DevServer, HTTPPort: 18080},
			}
		})

		It("serves the API over HTTP", func() {
			start()

			resp, err := get(fmt.Sprintf("http://localhost:%d/api/v1/machines", cfg.Server.HTTPPort), "")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("serves health and metrics outside the API group", func() {
			start()

			resp, err := get(fmt.Sprintf("http://localhost:%d/health", cfg.Server.HTTPPort), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()

			resp, err = get(fmt.Sprintf("http://localhost:%d/metrics", cfg.Server.HTTPPort), "")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("go_goroutines"))
		})

		// Given a running server
		// When we request an unknown API route
		// Then a JSON 404 is returned
		It("returns 404 JSON for unknown API routes", func() {
			// Arrange
			start()

			// Act
			resp, err := get(fmt.Sprintf("http://localhost:%d/api/v1/nonexistent", cfg.Server.HTTPPort), "")

			// Assert
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/json"))
		})

		It("stops accepting requests after Stop", func() {
			start()

			srv.Stop(context.TODO())
			srv = nil

			_, err := get(fmt.Sprintf("http://localhost:%d/health", cfg.Server.HTTPPort), "")
			Expect(err).To(HaveOccurred())
		})
	})

	Context("production server mode", func() {
		BeforeEach(func() {
			cfg = &config.Configuration{
				Server: config.Server{ServerMode: server.ProductionServer, HTTPPort: 18443},
			}
			client = &http.Client{
				Transport: &http.Transport{
					TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
				},
			}
		})

		It("serves over HTTPS with TLS", func() {
			start()

			resp, err := get(fmt.Sprintf("https://localhost:%d/api/v1/machines", cfg.Server.HTTPPort), "")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.TLS).NotTo(BeNil())
		})
	})

	Context("authentication enabled", func() {
		var secretFile string

		BeforeEach(func() {
			secretFile = filepath.Join(GinkgoT().TempDir(), "jwt.key")
			Expect(os.WriteFile(secretFile, []byte("s3cr3t\n"), 0o600)).To(Succeed())

			cfg = &config.Configuration{
				Server: config.Server{ServerMode: server.DevServer, HTTPPort: 18081},
				Auth:   config.Auth{Enabled: true, JWTFilePath: secretFile},
			}
		})

		// Given authentication is enabled
		// When API requests are made with and without a token
		// Then only the signed request is served
		It("requires a bearer token on the API", func() {
			// Arrange
			start()
			token, err := middlewares.GenerateToken([]byte("s3cr3t"), "orchestrator", jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			})
			Expect(err).NotTo(HaveOccurred())
			url := fmt.Sprintf("http://localhost:%d/api/v1/machines", cfg.Server.HTTPPort)

			// Act
			anonymous, err := get(url, "")
			Expect(err).NotTo(HaveOccurred())
			anonymous.Body.Close()
			signed, err := get(url, token)
			Expect(err).NotTo(HaveOccurred())
			signed.Body.Close()

			// Assert
			Expect(anonymous.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(signed.StatusCode).To(Equal(http.StatusOK))
		})

		It("leaves the health endpoint open", func() {
			start()

			resp, err := get(fmt.Sprintf("http://localhost:%d/health", cfg.Server.HTTPPort), "")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("fails when the secret file is missing", func() {
			cfg.Auth.JWTFilePath = filepath.Join(GinkgoT().TempDir(), "missing")

			_, err := server.NewServer(cfg, nil, registerHandlerFn)

			Expect(err).To(HaveOccurred())
		})

		It("fails when the secret file is empty", func() {
			Expect(os.WriteFile(secretFile, []byte("  \n"), 0o600)).To(Succeed())

			_, err := server.NewServer(cfg, nil, registerHandlerFn)

			Expect(err).To(MatchError(ContainSubstring("empty")))
		})
	})
})
