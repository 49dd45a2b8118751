package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/config"
)

// particleRecord is one row of a particle CSV file.
type particleRecord struct {
	X float64 `csv:"x"`
	Y float64 `csv:"y"`
	Z float64 `csv:"z"`
}

func loadParticles(cfg *config.Config, opts options) ([]r3.Vec, error) {
	if opts.ParticlesPath != "" {
		return readParticles(opts.ParticlesPath)
	}
	return demoParticles(cfg, opts.DemoCount, opts.Seed), nil
}

// readParticles reads particle positions from a CSV file with x, y and z
// columns.
func readParticles(path string) ([]r3.Vec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening particles: %w", err)
	}
	defer f.Close()

	var records []particleRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("parsing particles %s: %w", path, err)
	}
	pts := make([]r3.Vec, len(records))
	for i, r := range records {
		pts[i] = r3.Vec{X: r.X, Y: r.Y, Z: r.Z}
	}
	return pts, nil
}

// demoParticles fills a dam-break block in the low corner of the domain.
func demoParticles(cfg *config.Config, n int, seed uint64) []r3.Vec {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	dx := cfg.Domain.DX
	o := cfg.Domain.Origin
	w := float64(cfg.Domain.ISize) * dx
	h := float64(cfg.Domain.JSize) * dx
	d := float64(cfg.Domain.KSize) * dx

	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Vec{
			X: o[0] + w*(0.1+0.4*rng.Float64()),
			Y: o[1] + h*(0.1+0.5*rng.Float64()),
			Z: o[2] + d*(0.1+0.8*rng.Float64()),
		}
	}
	return pts
}
