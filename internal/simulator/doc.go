// Package simulator emulates a KWB Easyfire controller behind a
// serial-to-ethernet adapter.
//
// Each TCP client receives, once per interval, a few garbage bytes followed
// by a Sense frame and a Control frame built with the protocol
// constructors. Temperatures drift on a slow sine wave around plausible
// resting values and the Return Mixer and Resupply flags toggle on fixed
// schedules, so a bridge pointed at the simulator shows live data.
//
//	sim := simulator.New(simulator.Config{Listen: ":2323"})
//	if err := sim.Start(); err != nil {
//	    return err
//	}
//	defer sim.Shutdown(ctx)
package simulator
