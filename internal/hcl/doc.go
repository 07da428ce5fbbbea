// Package hcl implements config.Loader for HCL scenario files.
//
// A scenario may be split across several files; each top-level block type
// may appear at most once over all of them:
//
//	simulation { t1 = 1.0  max_states = 500 }
//	sequence "gre" { matrix = [32, 32]  flip_angle = deg(15)  dwell = 1e-5 }
//	phantom "disks" {
//	  shape = [32, 32, 1]
//	  fov   = [0.2, 0.2, 0.005]
//	  background { pd = 0  t1 = 1  t2 = 0.1 }
//	  disk {
//	    center = [0, 0]
//	    radius = 0.3
//	    tissue { pd = 1  t1 = 1.2  t2 = 0.08 }
//	  }
//	}
//	reconstruction { density = "none" }
//	output { trace = "trace.json"  image = "image.png" }
//
// Expressions can use the variable pi and the functions deg, range, min,
// max, abs and concat.
package hcl
