package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/jroimartin/gocui"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"zssp"
	"zssp/client"
	"zssp/configs"
	"zssp/crypto/p384"
	"zssp/storage/redisratchet"
)

var logger = logrus.New()

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: go run main.go <userID> <relayUDPAddress> <relayStaticKeyHex>")
		return
	}
	userID := os.Args[1]
	relayAddrStr := os.Args[2]
	relayKeyHex := os.Args[3]

	if err := createKeyIfNotExists(userID); err != nil {
		logger.Fatalf("Error creating keys: %v", err)
		return
	}
	if err := godotenv.Load(fmt.Sprintf("%s/.env.%s", configs.DebugSecretDir, userID)); err != nil {
		logger.Fatalf("Error loading .env file: %v", err)
		return
	}

	rawKey, err := hex.DecodeString(os.Getenv("CLIENT_PRIVATE_KEY"))
	if err != nil {
		logger.Fatalf("Failed to decode CLIENT_PRIVATE_KEY: %v", err)
		return
	}
	privKey, err := p384.ParsePrivateKey(rawKey)
	if err != nil {
		logger.Fatalf("Failed to parse CLIENT_PRIVATE_KEY: %v", err)
		return
	}

	relayAddr, err := net.ResolveUDPAddr("udp", relayAddrStr)
	if err != nil {
		logger.Fatalf("Failed to resolve relay address: %v", err)
		return
	}

	suite := zssp.DefaultSuite()
	var relayKeyBytes [zssp.P384PublicKeySize]byte
	relayRaw, err := hex.DecodeString(relayKeyHex)
	if err != nil || len(relayRaw) != len(relayKeyBytes) {
		logger.Fatalf("Failed to decode relay static key: %v", err)
		return
	}
	copy(relayKeyBytes[:], relayRaw)
	relayKey, ok := suite.ParsePublicKey(relayKeyBytes)
	if !ok {
		logger.Fatalf("Relay static key does not decode to a valid P-384 point")
		return
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		logger.Fatalf("Failed to open UDP socket: %v", err)
		return
	}

	redisAddr := os.Getenv("ZSSP_REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = configs.RedisAddress
	}
	store := redisratchet.New(redis.NewClient(&redis.Options{Addr: redisAddr}))

	chatApp, err := client.NewChatApp(userID, conn, relayAddr, relayKey, suite, zssp.NewP384KeyPair(privKey), zssp.DefaultSettings(), store, logger)
	if err != nil {
		logger.Fatalf("Error constructing chat app: %v", err)
		return
	}
	defer chatApp.Close()

	if err := chatApp.InitGui(); err != nil {
		logger.Fatalf("Error initializing gocui interface: %v", err)
	}
	defer chatApp.Gui.Close()

	if err := chatApp.Connect(); err != nil {
		logger.Fatalf("Error opening session to relay: %v", err)
	}

	if err := chatApp.Gui.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		logger.Fatalf("Error in gocui main loop: %v", err)
	}

	logger.Info("Application exited.")
}

func createKeyIfNotExists(userID string) error {
	envFileName := fmt.Sprintf("%s/.env.%s", configs.DebugSecretDir, userID)
	if _, err := os.Stat(envFileName); err == nil {
		return nil
	}
	if err := os.MkdirAll(configs.DebugSecretDir, 0700); err != nil {
		return fmt.Errorf("failed to create secret dir: %w", err)
	}

	kp, err := p384.Generate(nil)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	file, err := os.Create(envFileName)
	if err != nil {
		return fmt.Errorf("failed to create env file: %w", err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "CLIENT_PRIVATE_KEY=%s\n", hex.EncodeToString(kp.Bytes())); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}
