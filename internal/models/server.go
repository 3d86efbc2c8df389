package models

// APIServer is the HTTP surface of the service.
type APIServer interface {
	Start()
	Shutdown() error
}
