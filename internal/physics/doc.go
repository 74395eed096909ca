// Package physics simulates rigid spheres in an axis-aligned box.
//
// Each step integrates gravity and friction, bounces spheres off the box,
// then resolves every overlapping pair with a positional correction and a
// restitution impulse. Collision detection is O(n²); the sphere count is
// bounded by the quality settings.
//
//	w, _ := physics.NewWorld(physics.DefaultParams(), 50, 1)
//	for i := 0; i < 600; i++ {
//	    physics.Tick(w, 1.0/60)
//	}
//	fmt.Println(w.KineticEnergy())
//
// A sphere whose position or velocity stops being finite is moved back to
// its spawn point with zero velocity; the rest of the simulation continues.
package physics
