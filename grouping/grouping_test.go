package grouping

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"dupfinder/hashing"
	"dupfinder/types"
)

func img(id string, size, mtime int64, digest, phash string) types.ImageRecord {
	return types.ImageRecord{
		ID:         id,
		Path:       "/photos/" + id,
		Name:       id,
		Size:       size,
		ModifiedAt: mtime,
		MimeType:   "image/jpeg",
		Folder:     "photos",
		Hashes:     types.HashPair{Digest: digest, PerceptualHash: phash},
	}
}

func ids(g types.DuplicateGroup) []string {
	out := make([]string, len(g.Images))
	for i, im := range g.Images {
		out[i] = im.ID
	}
	return out
}

// flip returns h with the first n bits inverted
func flip(h string, n int) string {
	b := []byte(h)
	for i := 0; i < n; i++ {
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}

func TestFindExactExample(t *testing.T) {
	images := []types.ImageRecord{
		img("b", 1000, 20, "abc123", ""),
		img("a", 1000, 10, "abc123", ""),
	}
	groups := FindExact(images)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if g.Kind != types.MatchExact || g.Score != 1.0 {
		t.Errorf("kind=%v score=%f", g.Kind, g.Score)
	}
	if len(g.Images) != 2 || g.Images[0].ID != "a" {
		t.Errorf("images = %v, want a first", ids(g))
	}
	if g.TotalSize != 2000 || g.PotentialSavings != 1000 {
		t.Errorf("total=%d savings=%d", g.TotalSize, g.PotentialSavings)
	}
	if g.ID == "" {
		t.Error("group has no ID")
	}
}

func TestFindExactNeedsEqualSize(t *testing.T) {
	images := []types.ImageRecord{
		img("a", 1000, 1, "same", ""),
		img("b", 1001, 2, "same", ""),
		img("c", 1000, 3, "other", ""),
		img("d", 1000, 4, "", ""),
	}
	if groups := FindExact(images); len(groups) != 0 {
		t.Errorf("got %d groups, want none", len(groups))
	}
}

func TestFindExactPartitions(t *testing.T) {
	images := []types.ImageRecord{
		img("a", 10, 1, "x", ""),
		img("b", 10, 2, "y", ""),
		img("c", 10, 3, "x", ""),
		img("d", 20, 4, "z", ""),
		img("e", 20, 5, "z", ""),
		img("f", 10, 6, "y", ""),
	}
	groups := FindExact(images)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	got := map[string]bool{}
	for _, g := range groups {
		got[strings.Join(ids(g), ",")] = true
	}
	for _, want := range []string{"a,c", "b,f", "d,e"} {
		if !got[want] {
			t.Errorf("missing group %s, got %v", want, got)
		}
	}
}

func TestMaxDistance(t *testing.T) {
	tests := []struct {
		threshold float64
		bits      int
		want      int
	}{
		{0.9, 63, 6},
		{0.9, 64, 6},
		{0.8, 10, 2},
		{1.0, 63, 0},
		{0.0, 63, 63},
		{1.5, 63, 0},
		{-1, 8, 8},
	}
	for _, tt := range tests {
		if got := MaxDistance(tt.threshold, tt.bits); got != tt.want {
			t.Errorf("MaxDistance(%v, %d) = %d, want %d", tt.threshold, tt.bits, got, tt.want)
		}
	}
}

func TestBandLayoutCoversAllBits(t *testing.T) {
	for bits := 1; bits <= 64; bits++ {
		for d := 0; d <= bits; d++ {
			bands := BandLayout(d, bits)
			want := d + 1
			if want > bits {
				want = bits
			}
			if len(bands) != want {
				t.Fatalf("bits=%d d=%d: %d bands, want %d", bits, d, len(bands), want)
			}
			next := 0
			maxWidth := (bits + want - 1) / want
			for _, b := range bands {
				if b.Start != next || b.Width < 1 || b.Width > maxWidth {
					t.Fatalf("bits=%d d=%d: bad band %+v", bits, d, b)
				}
				next += b.Width
			}
			if next != bits {
				t.Fatalf("bits=%d d=%d: bands cover %d bits", bits, d, next)
			}
		}
	}
}

func TestFindSimilarThresholdExample(t *testing.T) {
	base := strings.Repeat("0", 31) + strings.Repeat("1", 32)
	tests := []struct {
		name     string
		distance int
		grouped  bool
	}{
		{"distance 6", 6, true},
		{"distance 7", 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images := []types.ImageRecord{
				img("a", 100, 1, "", base),
				img("b", 200, 2, "", flip(base, tt.distance)),
			}
			groups := FindSimilar(images, 0.9)
			if tt.grouped != (len(groups) == 1) {
				t.Fatalf("got %d groups, grouped=%v", len(groups), tt.grouped)
			}
			if tt.grouped {
				g := groups[0]
				if g.Kind != types.MatchSimilar {
					t.Errorf("kind = %v", g.Kind)
				}
				want := 1 - 6.0/63
				if diff := g.Score - want; diff > 1e-9 || diff < -1e-9 {
					t.Errorf("score = %f, want %f", g.Score, want)
				}
				if g.PotentialSavings != 200 {
					t.Errorf("savings = %d, want 200", g.PotentialSavings)
				}
			}
		})
	}
}

func TestFindSimilarEdgeCases(t *testing.T) {
	h := strings.Repeat("10", 31) + "1"
	if groups := FindSimilar(nil, 0.9); len(groups) != 0 {
		t.Error("empty input produced groups")
	}
	if groups := FindSimilar([]types.ImageRecord{img("a", 1, 1, "", h)}, 0.9); len(groups) != 0 {
		t.Error("single image produced groups")
	}

	// A hash of a different length is excluded, not compared
	images := []types.ImageRecord{
		img("a", 1, 1, "", h),
		img("b", 1, 2, "", h),
		img("c", 1, 3, "", h+"0"),
		img("d", 1, 4, "", ""),
	}
	groups := FindSimilar(images, 0.9)
	if len(groups) != 1 || strings.Join(ids(groups[0]), ",") != "a,b" {
		t.Fatalf("unexpected groups %+v", groups)
	}

	// Threshold 1.0 only groups identical hashes
	images = []types.ImageRecord{
		img("a", 1, 1, "", h),
		img("b", 1, 2, "", flip(h, 1)),
		img("c", 1, 3, "", h),
	}
	groups = FindSimilar(images, 1.0)
	if len(groups) != 1 || strings.Join(ids(groups[0]), ",") != "a,c" {
		t.Fatalf("exact pHash grouping wrong: %+v", groups)
	}
	if groups[0].Score != 1.0 {
		t.Errorf("score = %f, want 1", groups[0].Score)
	}
}

func TestFindSimilarZeroThresholdAcceptsEveryPair(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"complementary 63-bit hashes", strings.Repeat("0", 63), strings.Repeat("1", 63)},
		{"complementary 64-bit hashes", strings.Repeat("0", 64), strings.Repeat("1", 64)},
		{"single bit", "0", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits := len(tt.a)
			if d := MaxDistance(0, bits); d != bits {
				t.Fatalf("MaxDistance(0, %d) = %d", bits, d)
			}
			images := []types.ImageRecord{
				img("a", 10, 1, "", tt.a),
				img("b", 10, 2, "", tt.b),
				img("c", 10, 3, "", tt.a),
			}
			groups := FindSimilar(images, 0)
			if len(groups) != 1 || strings.Join(ids(groups[0]), ",") != "a,b,c" {
				t.Fatalf("got %d groups %+v, want one group a,b,c", len(groups), groups)
			}
			if want := 1 - 2.0/3; math.Abs(groups[0].Score-want) > 1e-9 {
				t.Errorf("score = %f, want %f", groups[0].Score, want)
			}
		})
	}
}

func TestFindSimilarGreedyClaim(t *testing.T) {
	// a~b and b~c but a!~c: a claims b, c is left alone
	a := strings.Repeat("0", 63)
	b := flip(a, 6)
	c := flip(flip(a, 12), 0)
	images := []types.ImageRecord{
		img("a", 1, 1, "", a),
		img("b", 1, 2, "", b),
		img("c", 1, 3, "", c),
	}
	groups := FindSimilar(images, 0.9)
	if len(groups) != 1 || strings.Join(ids(groups[0]), ",") != "a,b" {
		t.Fatalf("unexpected groups %+v", groups)
	}
}

func randomHashes(rng *rand.Rand, n, bits int) []string {
	// Cluster around a few centres so matches actually occur
	centres := make([]uint64, 8)
	for i := range centres {
		centres[i] = rng.Uint64()
	}
	out := make([]string, n)
	for i := range out {
		v := centres[rng.Intn(len(centres))]
		for f := rng.Intn(12); f > 0; f-- {
			v ^= 1 << uint(rng.Intn(bits))
		}
		out[i] = hashing.FormatBits(v, bits)
	}
	return out
}

func TestIndexHasNoFalseNegatives(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, bits := range []int{63, 64, 17, 1} {
		for _, threshold := range []float64{1.0, 0.95, 0.9, 0.85, 0.75, 0.02, 0} {
			strs := randomHashes(rng, 300, bits)
			hashes := make([]uint64, len(strs))
			for i, s := range strs {
				hashes[i], _ = hashing.ParseBits(s)
			}
			maxD := MaxDistance(threshold, bits)
			ix := NewIndex(hashes, bits, maxD)

			for i := range hashes {
				found := map[int]bool{}
				ix.Candidates(i, func(j int) {
					if found[j] {
						t.Fatalf("candidate %d returned twice for %d", j, i)
					}
					found[j] = true
				})
				for j := range hashes {
					if j == i {
						continue
					}
					if hashing.Hamming(hashes[i], hashes[j]) <= maxD && !found[j] {
						t.Fatalf("bits=%d t=%v: pair (%d,%d) at distance %d missed",
							bits, threshold, i, j, hashing.Hamming(hashes[i], hashes[j]))
					}
				}
			}
		}
	}
}

func TestCandidatesSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	strs := randomHashes(rng, 200, 63)
	hashes := make([]uint64, len(strs))
	for i, s := range strs {
		hashes[i], _ = hashing.ParseBits(s)
	}
	maxD := MaxDistance(0.9, 63)
	ix := NewIndex(hashes, 63, maxD)

	within := func(i int) map[int]bool {
		m := map[int]bool{}
		ix.Candidates(i, func(j int) {
			if hashing.Hamming(hashes[i], hashes[j]) <= maxD {
				m[j] = true
			}
		})
		return m
	}
	for i := range hashes {
		for j := range within(i) {
			if !within(j)[i] {
				t.Fatalf("%d lists %d but not the other way round", i, j)
			}
		}
	}
}

// bruteForceGroups is the quadratic greedy clustering the index must reproduce
func bruteForceGroups(strs []string, threshold float64) [][]int {
	bits := len(strs[0])
	maxD := MaxDistance(threshold, bits)
	processed := make([]bool, len(strs))
	var out [][]int
	for i := range strs {
		if processed[i] {
			continue
		}
		set := []int{i}
		for j := range strs {
			if j == i || processed[j] {
				continue
			}
			if hashing.HammingString(strs[i], strs[j]) <= maxD {
				set = append(set, j)
			}
		}
		if len(set) >= 2 {
			for _, k := range set {
				processed[k] = true
			}
			sort.Ints(set)
			out = append(out, set)
		}
	}
	return out
}

func TestFindSimilarMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for _, n := range []int{2, 50, 500} {
		for _, threshold := range []float64{0.95, 0.9, 0.8, 0} {
			strs := randomHashes(rng, n, 63)
			images := make([]types.ImageRecord, n)
			for i, s := range strs {
				// mtime equals index so group order equals input order
				images[i] = img(fmt.Sprintf("img%04d", i), 100, int64(i), "", s)
			}

			want := bruteForceGroups(strs, threshold)
			got := FindSimilar(images, threshold)
			if len(got) != len(want) {
				t.Fatalf("n=%d t=%v: %d groups, brute force %d", n, threshold, len(got), len(want))
			}
			for k := range want {
				var wantIDs []string
				for _, idx := range want[k] {
					wantIDs = append(wantIDs, fmt.Sprintf("img%04d", idx))
				}
				if g, w := strings.Join(ids(got[k]), ","), strings.Join(wantIDs, ","); g != w {
					t.Fatalf("n=%d t=%v group %d:\n got %s\nwant %s", n, threshold, k, g, w)
				}
			}
		}
	}
}

func TestMerge(t *testing.T) {
	h := strings.Repeat("0", 63)
	a := img("a", 500, 1, "d1", h)
	a2 := img("a2", 500, 2, "d1", h)
	b := img("b", 300, 3, "", flip(h, 2))
	c := img("c", 200, 4, "", flip(h, 3))
	x := img("x", 900, 5, "", strings.Repeat("1", 63))
	y := img("y", 800, 6, "", flip(strings.Repeat("1", 63), 1))

	exact := FindExact([]types.ImageRecord{a, a2})
	similar := []types.DuplicateGroup{
		{ID: "s1", Kind: types.MatchSimilar, Images: []types.ImageRecord{a, b, c}},
		{ID: "s2", Kind: types.MatchSimilar, Images: []types.ImageRecord{x, y}},
		{ID: "s3", Kind: types.MatchSimilar, Images: []types.ImageRecord{a2, c}},
	}

	merged := Merge(exact, similar)
	if len(merged) != 2 {
		t.Fatalf("got %d groups, want 2", len(merged))
	}

	// Ranked by savings: {a,a2,b,c} saves 1000, {x,y} saves 800
	first := merged[0]
	if first.Kind != types.MatchBoth {
		t.Errorf("first group kind = %v, want both", first.Kind)
	}
	if strings.Join(ids(first), ",") != "a,a2,b,c" {
		t.Errorf("first group = %v", ids(first))
	}
	if first.TotalSize != 1500 || first.PotentialSavings != 1000 {
		t.Errorf("total=%d savings=%d", first.TotalSize, first.PotentialSavings)
	}
	if merged[1].Kind != types.MatchSimilar || merged[1].PotentialSavings != 800 {
		t.Errorf("second group = %+v", merged[1])
	}

	seen := map[string]bool{}
	for _, g := range merged {
		if g.PotentialSavings != g.TotalSize-g.Images[0].Size {
			t.Errorf("savings invariant broken for %v", ids(g))
		}
		for _, im := range g.Images {
			if seen[im.ID] {
				t.Errorf("image %s appears twice", im.ID)
			}
			seen[im.ID] = true
		}
	}
}

func TestMergeDropsSimilarGroupLeftWithOneImage(t *testing.T) {
	a := img("a", 10, 1, "d", "")
	a2 := img("a2", 10, 2, "d", "")
	b := img("b", 10, 3, "", "")
	exact := FindExact([]types.ImageRecord{a, a2})
	merged := Merge(exact, []types.DuplicateGroup{{Kind: types.MatchSimilar, Images: []types.ImageRecord{a, b}}})
	if len(merged) != 1 || merged[0].Kind != types.MatchExact || len(merged[0].Images) != 2 {
		t.Fatalf("unexpected merge result %+v", merged)
	}
}

func TestFindDuplicates(t *testing.T) {
	h := strings.Repeat("01", 31) + "0"
	images := []types.ImageRecord{
		img("a", 100, 1, "d", h),
		img("b", 100, 2, "d", h),
		img("c", 50, 3, "", flip(h, 4)),
		img("d", 40, 4, "", flip(h, 5)),
		img("a", 100, 1, "d", h), // repeated snapshot entry
	}

	groups, err := FindDuplicates(context.Background(), images, 0.9, types.ModeSimilar)
	if err != nil {
		t.Fatalf("FindDuplicates failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].Kind != types.MatchBoth || strings.Join(ids(groups[0]), ",") != "a,b,c,d" {
		t.Errorf("group = %v kind %v", ids(groups[0]), groups[0].Kind)
	}

	exactOnly, err := FindDuplicates(context.Background(), images, 0.9, types.ModeExact)
	if err != nil {
		t.Fatalf("FindDuplicates failed: %v", err)
	}
	if len(exactOnly) != 1 || exactOnly[0].Kind != types.MatchExact || len(exactOnly[0].Images) != 2 {
		t.Errorf("exact-only result %+v", exactOnly)
	}

	empty, err := FindDuplicates(context.Background(), nil, 0.9, types.ModeSimilar)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty input: %v %v", empty, err)
	}
}

func TestFindDuplicatesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := FindDuplicates(ctx, []types.ImageRecord{img("a", 1, 1, "d", "")}, 0.9, types.ModeSimilar); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestApplyFilter(t *testing.T) {
	mk := func(folder string, ims ...types.ImageRecord) types.DuplicateGroup {
		for i := range ims {
			ims[i].Folder = folder
			ims[i].Path = "/" + folder + "/" + ims[i].ID
		}
		g := types.DuplicateGroup{ID: folder, Kind: types.MatchExact, Images: ims}
		g.Recompute()
		return g
	}
	camera := mk("Camera", img("a", 100, 1, "", ""), img("b", 100, 2, "", ""))
	shots := mk("Screenshots", img("c", 10, 3, "", ""), img("d", 20, 4, "", ""), img("e", 30, 5, "", ""))
	shots.Images[2].MimeType = "image/png"
	groups := []types.DuplicateGroup{camera, shots}

	t.Run("no filters is identity", func(t *testing.T) {
		got := ApplyFilter(groups, types.FilterCriteria{})
		if len(got) != 2 {
			t.Errorf("got %d groups", len(got))
		}
	})

	t.Run("folder with no members drops only that group", func(t *testing.T) {
		got := ApplyFilter(groups, types.FilterCriteria{Folders: []string{"Screenshots"}})
		if len(got) != 1 || got[0].ID != "Screenshots" || len(got[0].Images) != 3 {
			t.Fatalf("unexpected %+v", got)
		}
	})

	t.Run("size bounds recompute savings", func(t *testing.T) {
		min, max := int64(15), int64(100)
		got := ApplyFilter(groups, types.FilterCriteria{MinSize: &min, MaxSize: &max})
		if len(got) != 2 {
			t.Fatalf("got %d groups", len(got))
		}
		if ids(got[1])[0] != "d" || got[1].TotalSize != 50 || got[1].PotentialSavings != 30 {
			t.Errorf("shots after filter = %v total=%d savings=%d", ids(got[1]), got[1].TotalSize, got[1].PotentialSavings)
		}
	})

	t.Run("mime substring", func(t *testing.T) {
		got := ApplyFilter(groups, types.FilterCriteria{MimeTypes: []string{"JPEG"}})
		if len(got) != 2 || len(got[1].Images) != 2 {
			t.Errorf("unexpected %+v", got)
		}
	})

	t.Run("date range", func(t *testing.T) {
		got := ApplyFilter(groups, types.FilterCriteria{DateRange: &types.DateRange{Start: 2, End: 4}})
		if len(got) != 1 || got[0].ID != "Screenshots" {
			t.Errorf("unexpected %+v", got)
		}
	})

	t.Run("filtered groups are re-ranked", func(t *testing.T) {
		big := mk("Big", img("p", 10, 1, "", ""), img("q", 20, 2, "", ""), img("r", 500, 3, "", ""), img("s", 500, 4, "", ""))
		mid := mk("Mid", img("u", 300, 5, "", ""), img("v", 300, 6, "", ""))
		ranked := []types.DuplicateGroup{big, mid}
		Rank(ranked)
		if ranked[0].ID != "Big" {
			t.Fatalf("setup: %s ranked first", ranked[0].ID)
		}

		max := int64(400)
		got := ApplyFilter(ranked, types.FilterCriteria{MaxSize: &max})
		if len(got) != 2 || got[0].ID != "Mid" || got[1].ID != "Big" {
			t.Fatalf("order = %v", []string{got[0].ID, got[1].ID})
		}
		if got[0].PotentialSavings < got[1].PotentialSavings {
			t.Errorf("savings not descending: %d then %d", got[0].PotentialSavings, got[1].PotentialSavings)
		}
	})

	t.Run("match kinds", func(t *testing.T) {
		got := ApplyFilter(groups, types.FilterCriteria{MatchKinds: []types.MatchKind{types.MatchSimilar}})
		if len(got) != 0 {
			t.Errorf("got %d groups", len(got))
		}
	})
}
