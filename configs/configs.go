package configs

var (
	// ServerUDPAddress is where cmd/server binds its ZSSP relay socket.
	ServerUDPAddress = "localhost:7777"
	// AdminHTTPAddress is where cmd/server's gorilla/mux admin API and
	// /events websocket listen.
	AdminHTTPAddress = "localhost:8080"
	// RedisAddress is the shared ratchet-storage backend for both
	// cmd/server and cmd/client.
	RedisAddress = "localhost:6379"

	SessionsPath = "/sessions"
	EventsPath   = "/events"
	HealthPath   = "/health"

	// DebugSecretDir holds the per-identity .env files cmd/client and
	// cmd/server persist their static P-384 key to across restarts.
	DebugSecretDir = "./.secrets"

	// ClientRatchetKey templates the Redis key a persisted ratchet pair
	// is stored under, keyed by (remote static key hex, session datum).
	ClientRatchetKey = "client:ratchet:%s:%s"
)

