package fusion

import "math"

const earthG = 9.80665

// rotateVecByQuat rotates v (body frame) into the earth frame by quaternion
// q = [w,x,y,z].
func rotateVecByQuat(q [4]float32, v [3]float32) [3]float32 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	xx, yy, zz := x*x, y*y, z*z

	r00 := 1 - 2*(yy+zz)
	r01 := 2 * (x*y - w*z)
	r02 := 2 * (x*z + w*y)
	r10 := 2 * (x*y + w*z)
	r11 := 1 - 2*(xx+zz)
	r12 := 2 * (y*z - w*x)
	r20 := 2 * (x*z - w*y)
	r21 := 2 * (y*z + w*x)
	r22 := 1 - 2*(xx+yy)

	return [3]float32{
		r00*v[0] + r01*v[1] + r02*v[2],
		r10*v[0] + r11*v[1] + r12*v[2],
		r20*v[0] + r21*v[1] + r22*v[2],
	}
}

func quatToEuler(q [4]float32) (yaw, pitch, roll float32) {
	w, x, y, z := float64(q[0]), float64(q[1]), float64(q[2]), float64(q[3])
	const rad2deg = 57.2957795

	yaw = float32(math.Atan2(2*(x*y+w*z), 1-2*(y*y+z*z)) * rad2deg)
	pitch = float32(math.Asin(clampF64(2*(w*y-z*x), -1, 1)) * rad2deg)
	roll = float32(math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)) * rad2deg)
	return
}

func clampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFiniteF32(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// wrapDelta constrains a degree delta into (-180, 180].
func wrapDelta(delta float32) float32 {
	for delta > 180 {
		delta -= 360
	}
	for delta <= -180 {
		delta += 360
	}
	return delta
}
