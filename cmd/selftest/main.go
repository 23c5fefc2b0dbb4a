// cmd/selftest/main.go
//
// Host demonstrator: builds a simulated board, attaches a TMP117 model
// on i2c0, wires a button IRQ and a periodic heartbeat timer, then
// runs driver code against it exactly as production firmware would.
package main

import (
	"fmt"
	"os"
	"time"

	"machinesim-go/drivers/tmp117"
	"machinesim-go/gpio"
	"machinesim-go/i2c"
	"machinesim-go/machine"
	"machinesim-go/timer"
)

const heartbeatPeriod = 200 * time.Millisecond

var boardJSON = []byte(`{"LED": 25, "BUTTON": 14, "-SPARE": 7}`)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "selftest:", err)
		os.Exit(1)
	}
	fmt.Println("selftest: ok")
}

func run() error {
	m, err := machine.New(
		machine.WithI2C("i2c0"),
		machine.WithBoard(boardJSON),
	)
	if err != nil {
		return err
	}
	defer m.Close()

	bus, _ := m.I2CByID("i2c0")

	// --- sensor model: a TMP117 sitting at its default address ---
	sensor, err := i2c.NewDevice(bus, tmp117.Address)
	if err != nil {
		return err
	}
	sensor.SetRegister(tmp117.RegDeviceID, []byte{0x01, 0x17})
	sensor.SetRegister(tmp117.RegTemp, []byte{0x0C, 0x80}) // +25 C

	// --- driver side, unaware it is talking to a model ---
	d := tmp117.New(bus)
	if err := d.Configure(); err != nil {
		return err
	}
	mc, err := d.MilliCelsius()
	if err != nil {
		return err
	}
	fmt.Printf("tmp117: %d m°C\n", mc)

	// --- button IRQ ---
	led := m.MustPin("LED")
	button := m.MustPin("BUTTON")
	presses := 0
	watch, err := button.Watch(gpio.EdgeRising, func(*gpio.Pin, gpio.Event) error {
		presses++
		return led.Toggle()
	})
	if err != nil {
		return err
	}
	defer watch.Cancel()

	for i := 0; i < 3; i++ {
		if err := button.High(); err != nil {
			return err
		}
		if err := button.Low(); err != nil {
			return err
		}
	}
	fmt.Printf("button: %d presses, led=%d\n", presses, led.Level())

	// --- heartbeat timer ---
	beats := make(chan struct{}, 16)
	hb := m.Timer(0)
	err = hb.Init(timer.Config{
		Mode:     timer.Periodic,
		Period:   heartbeatPeriod,
		Callback: func(*timer.Timer) { beats <- struct{}{} },
	})
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		select {
		case <-beats:
			fmt.Println("heartbeat")
		case <-time.After(5 * heartbeatPeriod):
			return fmt.Errorf("heartbeat %d never arrived", i)
		}
	}
	hb.Deinit()
	return nil
}
