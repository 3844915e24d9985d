package ringpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DataSource holds a PoolConfig and creates the pool on first use.
type DataSource struct {
	config     *PoolConfig
	options    []Option
	pool       atomic.Pointer[ConnectionPool]
	createLock *sync.Mutex
}

// NewDataSource creates a DataSource; the pool is not built until CreatePool or GetConnection.
func NewDataSource(config *PoolConfig, options ...Option) (*DataSource, error) {

	if config == nil {
		return nil, errors.New("datasource config can't be nil")
	}

	return &DataSource{
		config:     config,
		options:    options,
		createLock: &sync.Mutex{},
	}, nil
}

// CreateDataSource parses name/value properties and builds the pool right away.
func CreateDataSource(properties map[string]string, options ...Option) (*DataSource, error) {

	config, err := ParseProperties(properties)
	if err != nil {
		return nil, err
	}

	ds, err := NewDataSource(config, options...)
	if err != nil {
		return nil, err
	}

	if _, err = ds.CreatePool(); err != nil {
		return nil, err
	}

	return ds, nil
}

// Config returns the configuration the pool is built from.
func (ds *DataSource) Config() *PoolConfig {
	return ds.config
}

// CreatePool builds the pool once; later calls return the same pool.
func (ds *DataSource) CreatePool() (*ConnectionPool, error) {

	if pool := ds.pool.Load(); pool != nil {
		return pool, nil
	}

	ds.createLock.Lock()
	defer ds.createLock.Unlock()

	if pool := ds.pool.Load(); pool != nil {
		return pool, nil
	}

	pool, err := NewConnectionPool(ds.config, ds.options...)
	if err != nil {
		return nil, err
	}

	ds.pool.Store(pool)

	return pool, nil
}

// Pool returns the pool, creating it when needed.
func (ds *DataSource) Pool() (*ConnectionPool, error) {
	return ds.CreatePool()
}

// GetConnection borrows a raw Client, creating the pool when needed.
func (ds *DataSource) GetConnection(ctx context.Context) (Client, error) {

	pool, err := ds.CreatePool()
	if err != nil {
		return nil, err
	}

	return pool.GetConnection(ctx)
}

// ReleaseConnection gives back a Client from GetConnection.
func (ds *DataSource) ReleaseConnection(client Client) error {

	if client == nil {
		return nil
	}

	pool := ds.pool.Load()
	if pool == nil {
		return ErrPoolNotCreated
	}

	return pool.Release(client)
}

// Close closes and forgets the pool; the next GetConnection builds a new one.
func (ds *DataSource) Close(force bool) {

	ds.createLock.Lock()
	pool := ds.pool.Swap(nil)
	ds.createLock.Unlock()

	if pool != nil {
		pool.Close(force)
	}
}

// PoolSize returns the live connection count, 0 when no pool exists.
func (ds *DataSource) PoolSize() int {

	pool := ds.pool.Load()
	if pool == nil {
		return 0
	}

	return pool.Size()
}
