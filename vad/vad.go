// Package vad decides whether microphone frames contain speech. It combines
// an RMS energy threshold, re-measured against the ambient noise floor on
// calibration, with spectral flux so steady noise such as a fan does not
// count as speech onset.
package vad

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	defaultEnergyThreshold = 3000
	defaultMinEnergy       = 300
	defaultEnergyRatio     = 1.5
	defaultFluxRatio       = 1.75
	defaultDamping         = 0.15
)

type Config struct {
	// InitialEnergy is the RMS threshold used before the first calibration.
	InitialEnergy float64
	// MinEnergy is the lowest threshold calibration may settle on.
	MinEnergy float64
	// EnergyRatio scales the measured ambient energy into the speech threshold.
	EnergyRatio float64
	// FluxRatio scales the measured ambient spectral flux into the onset threshold.
	FluxRatio float64
	// Dynamic keeps following the ambient level while no speech is heard.
	Dynamic bool
	// Damping is the per-second weight kept by the old threshold in dynamic mode.
	Damping float64
}

type Detector struct {
	cfg             Config
	energyThreshold float64
	fluxThreshold   float64
	lastSpectrum    []float64
}

func New(cfg Config) *Detector {
	if cfg.InitialEnergy <= 0 {
		cfg.InitialEnergy = defaultEnergyThreshold
	}
	if cfg.MinEnergy <= 0 {
		cfg.MinEnergy = defaultMinEnergy
	}
	if cfg.EnergyRatio <= 0 {
		cfg.EnergyRatio = defaultEnergyRatio
	}
	if cfg.FluxRatio <= 0 {
		cfg.FluxRatio = defaultFluxRatio
	}
	if cfg.Damping <= 0 || cfg.Damping >= 1 {
		cfg.Damping = defaultDamping
	}

	return &Detector{
		cfg:             cfg,
		energyThreshold: cfg.InitialEnergy,
	}
}

// Energy returns the RMS level of the frame in sample units.
func Energy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// Flux returns the positive spectral change between this frame and the
// previous one passed to Flux, averaged over the frequency bins.
func (d *Detector) Flux(samples []int16) float64 {
	spectrum := magnitudes(samples)
	if len(spectrum) == 0 {
		return 0
	}

	if len(d.lastSpectrum) != len(spectrum) {
		d.lastSpectrum = spectrum
		return 0
	}

	var flux float64
	for i, mag := range spectrum {
		if diff := mag - d.lastSpectrum[i]; diff > 0 {
			flux += diff
		}
	}

	d.lastSpectrum = spectrum

	return flux / float64(len(spectrum))
}

// Onset reports whether the frame starts an utterance.
func (d *Detector) Onset(samples []int16) bool {
	flux := d.Flux(samples)
	return Energy(samples) >= d.energyThreshold && flux >= d.fluxThreshold
}

// Silent reports whether the frame is below the speech threshold.
func (d *Detector) Silent(samples []int16) bool {
	return Energy(samples) < d.energyThreshold
}

// Adapt moves the energy threshold towards the level of a non-speech frame
// that lasted frameSeconds. It is a no-op unless dynamic mode is enabled.
func (d *Detector) Adapt(samples []int16, frameSeconds float64) {
	if !d.cfg.Dynamic || frameSeconds <= 0 {
		return
	}

	damping := math.Pow(d.cfg.Damping, frameSeconds)
	target := Energy(samples) * d.cfg.EnergyRatio
	d.energyThreshold = math.Max(d.cfg.MinEnergy, d.energyThreshold*damping+target*(1-damping))
}

// Calibrate measures the ambient noise in frames and resets both thresholds.
func (d *Detector) Calibrate(frames [][]int16) {
	if len(frames) == 0 {
		return
	}

	d.lastSpectrum = nil

	var energy, flux float64
	for _, frame := range frames {
		energy += Energy(frame)
		flux += d.Flux(frame)
	}

	n := float64(len(frames))
	d.energyThreshold = math.Max(d.cfg.MinEnergy, energy/n*d.cfg.EnergyRatio)

	if len(frames) > 1 {
		// the first frame has no predecessor and always yields zero flux
		d.fluxThreshold = flux / (n - 1) * d.cfg.FluxRatio
	}

	d.lastSpectrum = nil
}

func (d *Detector) EnergyThreshold() float64 {
	return d.energyThreshold
}

func (d *Detector) FluxThreshold() float64 {
	return d.fluxThreshold
}

// Reset forgets the previous spectrum, used when a new stream is opened.
func (d *Detector) Reset() {
	d.lastSpectrum = nil
}

func magnitudes(samples []int16) []float64 {
	if len(samples) == 0 {
		return nil
	}

	data := make([]float64, len(samples))
	for i, s := range samples {
		data[i] = float64(s) / math.MaxInt16
	}

	window.Apply(data, window.Hann)

	spectrum := fft.FFTReal(data)
	mags := make([]float64, len(spectrum)/2+1)
	for i := range mags {
		mags[i] = cmplx.Abs(spectrum[i])
	}

	return mags
}
