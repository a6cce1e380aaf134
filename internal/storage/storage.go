package storage

// Keys for persisted client state. Each key holds one independently
// serialized JSON document; a corrupt or missing value falls back to the
// component's default instead of failing startup.
const (
	KeyActiveRequest      = "activeRequest"
	KeyCollections        = "collections"
	KeyRequestHistory     = "requestHistory"
	KeyEnvironments       = "environments"
	KeyTheme              = "theme"
	KeySelectedEndpointID = "selectedEndpointId"
)

type Backend interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}
