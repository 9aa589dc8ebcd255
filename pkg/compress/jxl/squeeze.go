package jxl

// squeezeStep is one halving of a channel, horizontal or vertical
type squeezeStep struct {
	horizontal bool
	inW, inH   int
}

// squeezePlan halves alternately in each direction until both dimensions
// are at most 8, or maxSteps steps were taken (maxSteps <= 0 is unbounded).
func squeezePlan(w, h, maxSteps int) []squeezeStep {
	var steps []squeezeStep
	for (w > 8 || h > 8) && (maxSteps <= 0 || len(steps) < maxSteps) {
		if w > 8 {
			steps = append(steps, squeezeStep{horizontal: true, inW: w, inH: h})
			w = (w + 1) / 2
		}
		if h > 8 && (maxSteps <= 0 || len(steps) < maxSteps) {
			steps = append(steps, squeezeStep{horizontal: false, inW: w, inH: h})
			h = (h + 1) / 2
		}
	}
	return steps
}

// avgDims returns the dimensions of the averaged output of s
func (s squeezeStep) avgDims() (int, int) {
	if s.horizontal {
		return (s.inW + 1) / 2, s.inH
	}
	return s.inW, (s.inH + 1) / 2
}

// resDims returns the dimensions of the residual output of s
func (s squeezeStep) resDims() (int, int) {
	if s.horizontal {
		return s.inW / 2, s.inH
	}
	return s.inW, s.inH / 2
}

// smoothTendency predicts the difference of a pair from the previous
// sample, the pair average and the next average. It is zero unless the
// three are monotonic.
func smoothTendency(left, avg, next int64) int64 {
	var diff int64
	if left >= avg && avg >= next {
		diff = (4*left - 3*next - avg + 6) / 12
		if diff-(diff&1) > 2*(left-avg) {
			diff = 2*(left-avg) + 1
		}
		if diff+(diff&1) > 2*(avg-next) {
			diff = 2 * (avg - next)
		}
	} else if left <= avg && avg <= next {
		diff = (4*left - 3*next - avg - 6) / 12
		if diff+(diff&1) < 2*(left-avg) {
			diff = 2*(left-avg) - 1
		}
		if diff-(diff&1) < 2*(avg-next) {
			diff = 2 * (avg - next)
		}
	}
	return diff
}

// squeezeLine splits in into averages and residuals.
// len(avg) == (len(in)+1)/2, len(res) == len(in)/2.
func squeezeLine(in, avg, res []int32) {
	n := len(in)
	for x := 0; x < n/2; x++ {
		avg[x] = int32((int64(in[2*x]) + int64(in[2*x+1])) >> 1)
	}
	if n%2 == 1 {
		avg[n/2] = in[n-1]
	}
	for x := 0; x < n/2; x++ {
		a, b := int64(in[2*x]), int64(in[2*x+1])
		av := int64(avg[x])
		next := av
		if x+1 < len(avg) {
			next = int64(avg[x+1])
		}
		left := av
		if x > 0 {
			left = int64(in[2*x-1])
		}
		res[x] = int32((a - b) - smoothTendency(left, av, next))
	}
}

// unsqueezeLine inverts squeezeLine into out
func unsqueezeLine(avg, res, out []int32) {
	n := len(out)
	for x := 0; x < n/2; x++ {
		av := int64(avg[x])
		next := av
		if x+1 < len(avg) {
			next = int64(avg[x+1])
		}
		left := av
		if x > 0 {
			left = int64(out[2*x-1])
		}
		diff := int64(res[x]) + smoothTendency(left, av, next)
		a := (2*av + (diff & 1) + diff) >> 1
		out[2*x] = int32(a)
		out[2*x+1] = int32(a - diff)
	}
	if n%2 == 1 {
		out[n-1] = avg[n/2]
	}
}

// squeezeChannel applies one step to a w x h plane and returns the
// averaged plane and the residual plane.
func squeezeChannel(s squeezeStep, data []int32) (avgData, resData []int32) {
	aw, ah := s.avgDims()
	rw, rh := s.resDims()
	avgData = make([]int32, aw*ah)
	resData = make([]int32, rw*rh)
	if s.horizontal {
		for y := 0; y < s.inH; y++ {
			squeezeLine(data[y*s.inW:(y+1)*s.inW], avgData[y*aw:(y+1)*aw], resData[y*rw:(y+1)*rw])
		}
		return avgData, resData
	}
	col := make([]int32, s.inH)
	ca := make([]int32, ah)
	cr := make([]int32, rh)
	for x := 0; x < s.inW; x++ {
		for y := range col {
			col[y] = data[y*s.inW+x]
		}
		squeezeLine(col, ca, cr)
		for y := range ca {
			avgData[y*aw+x] = ca[y]
		}
		for y := range cr {
			resData[y*rw+x] = cr[y]
		}
	}
	return avgData, resData
}

// unsqueezeChannel inverts squeezeChannel
func unsqueezeChannel(s squeezeStep, avgData, resData []int32) []int32 {
	aw, ah := s.avgDims()
	rw, rh := s.resDims()
	out := make([]int32, s.inW*s.inH)
	if s.horizontal {
		for y := 0; y < s.inH; y++ {
			unsqueezeLine(avgData[y*aw:(y+1)*aw], resData[y*rw:(y+1)*rw], out[y*s.inW:(y+1)*s.inW])
		}
		return out
	}
	ca := make([]int32, ah)
	cr := make([]int32, rh)
	col := make([]int32, s.inH)
	for x := 0; x < s.inW; x++ {
		for y := range ca {
			ca[y] = avgData[y*aw+x]
		}
		for y := range cr {
			cr[y] = resData[y*rw+x]
		}
		unsqueezeLine(ca, cr, col)
		for y := range col {
			out[y*s.inW+x] = col[y]
		}
	}
	return out
}
