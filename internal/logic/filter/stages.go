package filter

type rgb struct {
	r, g, b float64
}

// stage is one linear color operation. Intermediate values are not clamped.
type stage func(rgb) rgb

// Pivot for contrast stages.
const midGray = 128.0

var pipelines = map[Kind][]stage{
	None: nil,
	MonoMuse: {
		grayscale(),
		contrast(1.2),
	},
	Retrograde: {
		brightness(0.8),
		saturate(0.7),
		sepia(0.4),
		contrast(1.1),
	},
	VivaPop: {
		brightness(1.1),
		saturate(1.5),
		contrast(1.05),
	},
	SolShine: {
		brightness(1.15),
		saturate(1.4),
		sepia(0.1),
		contrast(1.1),
	},
}

func luminance(p rgb) float64 {
	return p.r*0.299 + p.g*0.587 + p.b*0.114
}

func grayscale() stage {
	return func(p rgb) rgb {
		l := luminance(p)
		return rgb{l, l, l}
	}
}

func brightness(factor float64) stage {
	return func(p rgb) rgb {
		return rgb{p.r * factor, p.g * factor, p.b * factor}
	}
}

// saturate blends each channel toward (factor < 1) or away from (factor > 1)
// the pixel luminance.
func saturate(factor float64) stage {
	return func(p rgb) rgb {
		l := luminance(p)
		return rgb{
			l + (p.r-l)*factor,
			l + (p.g-l)*factor,
			l + (p.b-l)*factor,
		}
	}
}

// sepia mixes the standard sepia matrix output with the incoming color;
// amount is the sepia share.
func sepia(amount float64) stage {
	keep := 1 - amount
	return func(p rgb) rgb {
		sr := p.r*0.393 + p.g*0.769 + p.b*0.189
		sg := p.r*0.349 + p.g*0.686 + p.b*0.168
		sb := p.r*0.272 + p.g*0.534 + p.b*0.131
		return rgb{
			p.r*keep + sr*amount,
			p.g*keep + sg*amount,
			p.b*keep + sb*amount,
		}
	}
}

func contrast(factor float64) stage {
	return func(p rgb) rgb {
		return rgb{
			(p.r-midGray)*factor + midGray,
			(p.g-midGray)*factor + midGray,
			(p.b-midGray)*factor + midGray,
		}
	}
}
