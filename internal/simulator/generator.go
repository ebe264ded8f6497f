package simulator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/muurk/easyfire/internal/protocol"
)

// Flag positions toggled in the control frames
const (
	ReturnMixerBit = 17
	ResupplyBit    = 25
)

// baseCelsius is the resting value of each temperature slot
var baseCelsius = []float64{
	62.0,  // Flow
	48.5,  // Return
	55.0,  // Boiler 0
	580.0, // Furnace
	45.0,  // Buffer Tank 2
	52.0,  // Buffer Tank 1
	-3.5,  // Outside
	140.0, // Exhaust
	20.0,
	20.0,
	20.0,
	20.0,
	35.0, // Stoker Channel
}

// driftPeriod is the number of steps in one full drift cycle
const driftPeriod = 120

// Temperatures returns the profile at step. Slots past the base list rest at
// 20 °C. Each slot drifts on a sine wave with its own phase.
func Temperatures(step, slots int) []protocol.Temperature {
	temps := make([]protocol.Temperature, slots)
	for i := range temps {
		base := 20.0
		if i < len(baseCelsius) {
			base = baseCelsius[i]
		}
		amplitude := math.Abs(base)*0.05 + 1
		phase := float64(i) * math.Pi / 7
		v := base + amplitude*math.Sin(2*math.Pi*float64(step)/driftPeriod+phase)
		temps[i] = protocol.Temperature(math.Round(v * 10))
	}
	return temps
}

// Flags returns the control flags at step
func Flags(step int) map[int]bool {
	return map[int]bool{
		ReturnMixerBit: (step/5)%2 == 1,
		ResupplyBit:    step%10 < 3,
	}
}

// Generator produces the byte stream of one simulated controller.
type Generator struct {
	slots        int
	noise        int
	lengthOffset int
	counter      byte
	step         int
	rng          *rand.Rand
	pins         map[int]protocol.Temperature
}

// NewGenerator creates a generator for slots temperatures that prefixes every
// Sense frame with up to noise garbage bytes.
func NewGenerator(slots, noise, lengthOffset int, seed uint64) *Generator {
	return &Generator{
		slots:        slots,
		noise:        noise,
		lengthOffset: lengthOffset,
		rng:          rand.New(rand.NewPCG(seed, seed^0x5eed)),
	}
}

// Pin holds slot at t instead of drifting it. Slots beyond the frame are ignored.
func (g *Generator) Pin(slot int, t protocol.Temperature) {
	if g.pins == nil {
		g.pins = make(map[int]protocol.Temperature)
	}
	g.pins[slot] = t
}

// ParsePin parses a "slot=celsius" pin such as "6=-12.3"
func ParsePin(s string) (int, protocol.Temperature, error) {
	slot, value, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("pin %q: want slot=celsius", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(slot))
	if err != nil || n < 0 {
		return 0, 0, fmt.Errorf("pin %q: invalid slot", s)
	}
	t, err := protocol.ParseTemperature(strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("pin %q: %w", s, err)
	}
	return n, t, nil
}

// Step returns the index of the next step Next will emit
func (g *Generator) Step() int {
	return g.step
}

// Next returns noise, a Sense frame and a Control frame for the current step
// and advances the profile.
func (g *Generator) Next() ([]byte, error) {
	var out []byte
	out = append(out, g.noiseBytes()...)

	temps := Temperatures(g.step, g.slots)
	for slot, t := range g.pins {
		if slot < len(temps) {
			temps[slot] = t
		}
	}
	payload := protocol.BuildSensePayload(0x01, protocol.SenseLayout{}, temps)
	sense, err := protocol.BuildSenseFrame(g.nextCounter(), payload, g.lengthOffset)
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", g.step, err)
	}
	out = append(out, sense...)

	control := make([]byte, protocol.ControlPayloadLength)
	for bit, on := range Flags(g.step) {
		if err := protocol.SetBit(control, bit, on); err != nil {
			return nil, fmt.Errorf("step %d: %w", g.step, err)
		}
	}
	frame, err := protocol.BuildControlFrame(g.nextCounter(), control)
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", g.step, err)
	}
	out = append(out, frame...)

	g.step++
	return out, nil
}

func (g *Generator) nextCounter() byte {
	c := g.counter
	g.counter++
	return c
}

// noiseBytes never contains the preamble, so it cannot start a frame
func (g *Generator) noiseBytes() []byte {
	if g.noise <= 0 {
		return nil
	}
	n := g.rng.IntN(g.noise + 1)
	noise := make([]byte, n)
	for i := range noise {
		b := byte(g.rng.IntN(256))
		if b == protocol.Preamble {
			b = 0xFF
		}
		noise[i] = b
	}
	return noise
}
