package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"zssp"
	"zssp/configs"
	"zssp/crypto/p384"
	"zssp/server"
	"zssp/storage/redisratchet"
)

var logger = logrus.New()

func main() {
	udpAddr := envOr("ZSSP_UDP_ADDRESS", configs.ServerUDPAddress)
	httpAddr := envOr("ZSSP_ADMIN_ADDRESS", configs.AdminHTTPAddress)
	redisAddr := envOr("ZSSP_REDIS_ADDRESS", configs.RedisAddress)

	rawKey, err := loadOrCreateStaticKey()
	if err != nil {
		logger.Fatalf("Error establishing static identity key: %v", err)
	}
	staticSecret := zssp.NewP384KeyPair(rawKey)

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	store := redisratchet.New(redisClient)

	suite := zssp.DefaultSuite()
	srv, err := server.New(udpAddr, suite, staticSecret, zssp.DefaultSettings(), store, logger, 1400)
	if err != nil {
		logger.Fatalf("Error constructing server: %v", err)
	}
	defer srv.Close()

	pub := srv.StaticPublicKey().Bytes()
	logger.Infof("zssp relay listening on %s (static key %s)", udpAddr, hex.EncodeToString(pub[:]))

	stop := make(chan struct{})
	go srv.Serve(stop)

	httpServer := &http.Server{Addr: httpAddr, Handler: srv.Router()}
	go func() {
		logger.Infof("admin API listening on %s", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("admin server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logger.Info("shutting down")
	close(stop)
	httpServer.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadOrCreateStaticKey persists the relay's static P-384 identity under
// configs.DebugSecretDir across restarts, the same way cmd/client
// persists per-user keys in .env.<userID> files.
func loadOrCreateStaticKey() (p384.KeyPair, error) {
	envFile := fmt.Sprintf("%s/.env.server", configs.DebugSecretDir)

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return p384.KeyPair{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
		raw, err := hex.DecodeString(os.Getenv("SERVER_PRIVATE_KEY"))
		if err != nil {
			return p384.KeyPair{}, fmt.Errorf("decoding SERVER_PRIVATE_KEY: %w", err)
		}
		return p384.ParsePrivateKey(raw)
	}

	if err := os.MkdirAll(configs.DebugSecretDir, 0700); err != nil {
		return p384.KeyPair{}, fmt.Errorf("creating %s: %w", configs.DebugSecretDir, err)
	}
	kp, err := p384.Generate(nil)
	if err != nil {
		return p384.KeyPair{}, fmt.Errorf("generating static key: %w", err)
	}
	file, err := os.Create(envFile)
	if err != nil {
		return p384.KeyPair{}, fmt.Errorf("creating %s: %w", envFile, err)
	}
	defer file.Close()
	if _, err := fmt.Fprintf(file, "SERVER_PRIVATE_KEY=%s\n", hex.EncodeToString(kp.Bytes())); err != nil {
		return p384.KeyPair{}, fmt.Errorf("writing %s: %w", envFile, err)
	}
	return kp, nil
}
