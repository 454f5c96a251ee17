package sensor

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// INA260 register map.
const (
	regCurrent        = 0x01
	regVoltage        = 0x02
	regPower          = 0x03
	regManufacturerID = 0xFE

	ina260ManufacturerID = 0x5449 // "TI"

	// i2cSlave is the I2C_SLAVE ioctl request from <linux/i2c-dev.h>.
	i2cSlave = 0x0703
)

// INA260 talks to a TI INA260 current/power monitor through /dev/i2c-N.
type INA260 struct {
	mu      sync.Mutex
	fd      int
	bus     int
	address uint16
	closed  bool
}

// OpenINA260 opens the device at address on the given I2C bus and checks its
// manufacturer id.
func OpenINA260(bus int, address uint16) (*INA260, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, int(address)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("select i2c address %#x on %s: %w", address, path, err)
	}

	dev := &INA260{fd: fd, bus: bus, address: address}
	id, err := dev.ManufacturerID()
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	if id != ina260ManufacturerID {
		_ = dev.Close()
		return nil, fmt.Errorf("device at %s/%#x is not an INA260 (manufacturer id %#04x)", path, address, id)
	}
	return dev, nil
}

func (d *INA260) readRegister(reg byte) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, fmt.Errorf("%w: device closed", ErrRead)
	}
	if _, err := unix.Write(d.fd, []byte{reg}); err != nil {
		return 0, fmt.Errorf("%w: select register %#02x: %v", ErrRead, reg, err)
	}
	buf := make([]byte, 2)
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("%w: register %#02x: %v", ErrRead, reg, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("%w: register %#02x: short read (%d bytes)", ErrRead, reg, n)
	}
	return binary.BigEndian.Uint16(buf), nil
}

func (d *INA260) ReadVoltage() (float64, error) {
	raw, err := d.readRegister(regVoltage)
	if err != nil {
		return 0, err
	}
	return voltageFromRaw(raw), nil
}

func (d *INA260) ReadCurrent() (float64, error) {
	raw, err := d.readRegister(regCurrent)
	if err != nil {
		return 0, err
	}
	return currentFromRaw(raw), nil
}

func (d *INA260) ReadPower() (float64, error) {
	raw, err := d.readRegister(regPower)
	if err != nil {
		return 0, err
	}
	return powerFromRaw(raw), nil
}

// ManufacturerID returns the manufacturer register, 0x5449 on genuine parts.
func (d *INA260) ManufacturerID() (uint16, error) {
	return d.readRegister(regManufacturerID)
}

// Configure accepts only the empty Settings; writing the configuration
// register is not implemented.
func (d *INA260) Configure(s Settings) error {
	if s.Empty() {
		return nil
	}
	return fmt.Errorf("%w: ina260 averaging=%d", ErrUnsupported, s.Averaging)
}

func (d *INA260) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return unix.Close(d.fd)
}

// 1.25 mV per bit.
func voltageFromRaw(raw uint16) float64 {
	return float64(raw) * 0.00125
}

// 1.25 mA per bit, two's complement.
func currentFromRaw(raw uint16) float64 {
	return float64(int16(raw)) * 0.00125
}

// 10 mW per bit.
func powerFromRaw(raw uint16) float64 {
	return float64(raw) * 0.01
}
