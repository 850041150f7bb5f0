package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"maxgauge/internal/config"
	"maxgauge/internal/max17048"
	"maxgauge/internal/server"
)

func main() {
	app := cli.NewApp()
	app.Name = "maxgauge"
	app.Usage = "MAX17048 fuel gauge reader"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load configuration from `FILE`",
		},
	}

	tempFlag := cli.Float64Flag{
		Name:  "temp, t",
		Usage: "ambient temperature in °C for RCOMP",
	}
	clampFlag := cli.BoolFlag{
		Name:  "clamp",
		Usage: "clamp RCOMP to [0, 255] instead of wrapping",
	}

	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "apply compensation and serve battery state over HTTP",
			Flags:  []cli.Flag{tempFlag, clampFlag},
			Action: serve,
		},
		{
			Name:   "read",
			Usage:  "print one set of readings",
			Action: read,
		},
		{
			Name:   "compensate",
			Usage:  "write RCOMP for the ambient temperature (default RCOMP without --temp)",
			Flags:  []cli.Flag{tempFlag, clampFlag},
			Action: compensate,
		},
	}
	app.Action = serve

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("temp") {
		cfg.SetTemperature(float32(c.Float64("temp")))
	}
	if c.Bool("clamp") {
		cfg.Clamp = true
	}

	log.SetFormatter(&log.TextFormatter{DisableColors: true})
	log.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// openGauge initializes the host and binds a gauge to the configured bus.
// The returned func releases the gauge and closes the bus.
func openGauge(cfg *config.Config) (*max17048.MAX17048, func(), error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, errors.Wrap(err, "host init")
	}
	bus, err := i2creg.Open(cfg.BusName)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open I2C")
	}
	mx := max17048.New(bus, cfg.Address)
	log.Debugf("Bound %s", mx)

	release := func() {
		b, ok := mx.Release().(i2c.BusCloser)
		if !ok {
			return
		}
		if err := b.Close(); err != nil {
			log.Warnf("Closing I2C: %v", err)
		}
	}
	return mx, release, nil
}

func applyCompensation(mx *max17048.MAX17048, cfg *config.Config) error {
	switch {
	case cfg.Temperature == nil:
		log.Infof("Applying default RCOMP %#02x", max17048.DefaultRCOMP)
		return errors.Wrap(mx.DefaultTemperatureCompensation(), "default compensation")
	case cfg.Clamp:
		t := *cfg.Temperature
		log.Infof("Applying RCOMP %#02x for %.1f°C (clamped)", max17048.ClampedRCOMP(t), t)
		return errors.Wrapf(mx.ClampedTemperatureCompensation(t), "compensation at %.1f°C", t)
	default:
		t := *cfg.Temperature
		log.Infof("Applying RCOMP %#02x for %.1f°C", max17048.RCOMP(t), t)
		return errors.Wrapf(mx.TemperatureCompensation(t), "compensation at %.1f°C", t)
	}
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log.Println("Starting maxgauge...")

	mx, release, err := openGauge(cfg)
	if err != nil {
		return err
	}
	defer release()

	if err := applyCompensation(mx, cfg); err != nil {
		log.Errorf("Failed to configure MAX17048: %v", err)
	}
	if v, err := mx.Version(); err != nil {
		log.Errorf("Failed to read MAX17048 version: %v", err)
	} else {
		log.Infof("Hardware Initialized: MAX17048 (Addr: 0x%X, Version: 0x%04X)", cfg.Address, v)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg.Port, mx); err != nil {
		return errors.Wrap(err, "server failed")
	}
	log.Info("Stopped")
	return nil
}

func read(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	mx, release, err := openGauge(cfg)
	if err != nil {
		return err
	}
	defer release()

	r, err := mx.Read()
	if err != nil {
		return errors.Wrap(err, "read MAX17048")
	}
	fmt.Printf("%s  %d%% (%.2f%%)  %+.2f%%/hr  version 0x%04X\n", r.Voltage, r.SOC, r.SOCPercent, r.ChargeRate, r.Version)
	return nil
}

func compensate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	mx, release, err := openGauge(cfg)
	if err != nil {
		return err
	}
	defer release()

	return applyCompensation(mx, cfg)
}
