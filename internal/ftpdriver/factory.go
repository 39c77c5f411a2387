package ftpdriver

import ftpserver "goftp.io/server"

// Factory implements goftp.io/server's DriverFactory by handing out the
// same Driver to every session - the backend carries no per-connection
// state, so sharing it is safe under the single-writer discipline
// vfs.Backend already enforces.
type Factory struct {
	driver *Driver
}

// NewFactory returns a Factory that always serves backend through driver.
func NewFactory(driver *Driver) *Factory {
	return &Factory{driver: driver}
}

// NewDriver implements ftpserver.DriverFactory.
func (f *Factory) NewDriver() (ftpserver.Driver, error) {
	return f.driver, nil
}
