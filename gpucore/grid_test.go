package gpucore

import "testing"

type limits struct{ width, max int }

func (l limits) Label() string                      { return "limits" }
func (l limits) Function() string                   { return "kernel" }
func (l limits) ThreadExecutionWidth() int          { return l.width }
func (l limits) MaxTotalThreadsPerThreadgroup() int { return l.max }

func TestThreadgroupSize(t *testing.T) {
	tests := []struct {
		name  string
		width int
		max   int
		want  Size
	}{
		{"typical", 32, 1024, Size{32, 32, 1}},
		{"wide", 64, 256, Size{64, 4, 1}},
		{"budget below width", 32, 16, Size{32, 1, 1}},
		{"zero width", 0, 64, Size{1, 64, 1}},
		{"zero budget", 8, 0, Size{8, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ThreadgroupSize(limits{tt.width, tt.max})
			if got != tt.want {
				t.Errorf("ThreadgroupSize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThreadgroupsFor(t *testing.T) {
	group := Size{Width: 16, Height: 4, Depth: 1}
	tests := []struct {
		w, h int
		want Size
	}{
		{16, 4, Size{1, 1, 1}},
		{17, 5, Size{2, 2, 1}},
		{1, 1, Size{1, 1, 1}},
		{1920, 1080, Size{120, 270, 1}},
		{0, 10, Size{0, 0, 1}},
	}

	for _, tt := range tests {
		got := ThreadgroupsFor(tt.w, tt.h, group)
		if got != tt.want {
			t.Errorf("ThreadgroupsFor(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestThreadgroupsFor_AlwaysCovers(t *testing.T) {
	groups := []Size{{1, 1, 1}, {8, 8, 1}, {32, 32, 1}, {64, 4, 1}, {7, 3, 1}}
	for _, group := range groups {
		for w := 1; w <= 70; w += 3 {
			for h := 1; h <= 70; h += 5 {
				n := ThreadgroupsFor(w, h, group)
				if !Covers(n, group, w, h) {
					t.Fatalf("group %v: %v threadgroups do not cover %dx%d", group, n, w, h)
				}
				if n.Count()*group.Count() < w*h {
					t.Fatalf("group %v: %d threads < %d pixels", group, n.Count()*group.Count(), w*h)
				}
				// No more than one partial group per dimension.
				if (n.Width-1)*group.Width >= w || (n.Height-1)*group.Height >= h {
					t.Fatalf("group %v: %v threadgroups overshoot %dx%d", group, n, w, h)
				}
			}
		}
	}
}
