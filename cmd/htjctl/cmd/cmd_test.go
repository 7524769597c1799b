package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/codestream"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		in   string
		x, y int
		ok   bool
	}{
		{in: "{64,32}", x: 64, y: 32, ok: true},
		{in: "16,8", x: 16, y: 8, ok: true},
		{in: " { 4 , 5 } ", x: 4, y: 5, ok: true},
		{in: "{64}"},
		{in: "{a,b}"},
		{in: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			x, y, err := parsePair(tt.in)
			if !tt.ok {
				require.ErrorIs(t, err, htj2k.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.x, x)
			assert.Equal(t, tt.y, y)
		})
	}
}

func TestParseSizes(t *testing.T) {
	sizes, err := parseSizes("{128,64},{256,256}")
	require.NoError(t, err)
	assert.Equal(t, []htj2k.Size{{W: 128, H: 64}, {W: 256, H: 256}}, sizes)

	sizes, err = parseSizes("{32,32}")
	require.NoError(t, err)
	assert.Equal(t, []htj2k.Size{{W: 32, H: 32}}, sizes)

	_, err = parseSizes("{32,32},{x}")
	require.ErrorIs(t, err, htj2k.ErrConfiguration)
}

func TestParseTileParts(t *testing.T) {
	tests := []struct {
		in   string
		want codestream.Division
		ok   bool
	}{
		{in: "R", want: codestream.Division{Resolution: true}, ok: true},
		{in: "c", want: codestream.Division{Component: true}, ok: true},
		{in: "RC", want: codestream.Division{Resolution: true, Component: true}, ok: true},
		{in: "RX"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTileParts(tt.in)
			if !tt.ok {
				require.ErrorIs(t, err, htj2k.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSkip(t *testing.T) {
	n, err := parseSkip("")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = parseSkip("2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = parseSkip("1,1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = parseSkip("2,1")
	require.ErrorIs(t, err, htj2k.ErrConfiguration)
	_, err = parseSkip("-1")
	require.ErrorIs(t, err, htj2k.ErrConfiguration)
}

func TestCompressOptions(t *testing.T) {
	cmd := NewCompressCmd(context.Background())
	require.NoError(t, cmd.ParseFlags([]string{
		"--num-decomps", "3", "--reversible", "--prog-order", "lrcp",
		"--block-size", "{32,16}", "--precincts", "{64,64},{128,128}",
		"--tile-size", "{256,128}", "--tile-offset", "{1,2}", "--tileparts", "R",
		"--tlm", "--layers", "2", "--comment", "hi", "--workers", "2",
	}))
	o, err := compressOptions(cmd)
	require.NoError(t, err)
	assert.Equal(t, 3, o.Levels)
	assert.True(t, o.Reversible)
	assert.Equal(t, packet.LRCP, o.Progression)
	assert.Equal(t, htj2k.Size{W: 16, H: 32}, o.Block)
	assert.Equal(t, []htj2k.Size{{W: 64, H: 64}, {W: 128, H: 128}}, o.Precincts)
	assert.Equal(t, htj2k.Size{W: 256, H: 128}, o.TileSize)
	assert.Equal(t, image.Point{X: 1, Y: 2}, o.TileOffset)
	assert.Equal(t, codestream.Division{Resolution: true}, o.TileParts)
	assert.True(t, o.TLM)
	assert.Equal(t, 2, o.Layers)
	assert.Equal(t, "hi", o.Comment)
	assert.Equal(t, 2, o.Workers)
	assert.True(t, o.ColourTransform)

	cmd = NewCompressCmd(context.Background())
	require.NoError(t, cmd.ParseFlags([]string{"--prog-order", "XYZW"}))
	_, err = compressOptions(cmd)
	require.ErrorIs(t, err, htj2k.ErrConfiguration)
}

func TestPNM_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		precision int
	}{
		{name: "pgm 8", n: 1, precision: 8},
		{name: "pgm 12", n: 1, precision: 12},
		{name: "ppm 8", n: 3, precision: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := htj2k.NewImage(5, 3, tt.n, tt.precision)
			for c := range img.Components {
				for i := range img.Components[c].Data {
					img.Components[c].Data[i] = int32((i*37 + c*11) % (1 << uint(tt.precision)))
				}
			}
			var buf bytes.Buffer
			require.NoError(t, writePNM(&buf, img))
			p, err := readPNM(&buf)
			require.NoError(t, err)
			assert.Equal(t, 5, p.width)
			assert.Equal(t, 3, p.height)
			assert.Equal(t, 1<<uint(tt.precision)-1, p.maxval)
			require.Len(t, p.samples, tt.n)
			for c := range p.samples {
				for i, v := range p.samples[c] {
					assert.Equal(t, int(img.Components[c].Data[i]), v)
				}
			}
		})
	}
}

func TestPNM_Comments(t *testing.T) {
	p, err := readPNM(bytes.NewReader([]byte("P5\n# made by hand\n2 1\n255\n\x07\xff")))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{7, 255}}, p.samples)

	_, err = readPNM(bytes.NewReader([]byte("P2\n2 1\n255\n7 255")))
	assert.Error(t, err)
	_, err = readPNM(bytes.NewReader([]byte("P5\n2 1\n255\n\x07")))
	assert.Error(t, err)
}

func TestCLI_CompressExpand(t *testing.T) {
	dir := t.TempDir()
	src := image.NewRGBA(image.Rect(0, 0, 40, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 40; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 10), B: uint8(x ^ y), A: 0xFF})
		}
	}
	in := filepath.Join(dir, "in.png")
	f, err := os.Create(in)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	j2c := filepath.Join(dir, "out.j2c")
	var out bytes.Buffer
	root := NewRoot(context.Background(), "test")
	root.SetOut(&out)
	root.SetArgs([]string{"compress", "-i", in, "-o", j2c, "--reversible", "--num-decomps", "2",
		"--tile-size", "{32,16}", "--tileparts", "C", "--tlm", "--comment", "cli"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Elapsed time = ")

	for _, name := range []string{"back.png", "back.ppm", "back.tiff", "back.bmp"} {
		t.Run(name, func(t *testing.T) {
			back := filepath.Join(dir, name)
			root := NewRoot(context.Background(), "test")
			root.SetOut(&bytes.Buffer{})
			root.SetArgs([]string{"expand", "-i", j2c, "-o", back})
			require.NoError(t, root.Execute())

			img, err := readImage(context.Background(), back, true, nil)
			require.NoError(t, err)
			require.Len(t, img.Components, 3)
			for y := 0; y < 24; y++ {
				for x := 0; x < 40; x++ {
					c := src.RGBAAt(x, y)
					i := y*40 + x
					require.Equal(t, int32(c.R), img.Components[0].Data[i])
					require.Equal(t, int32(c.G), img.Components[1].Data[i])
					require.Equal(t, int32(c.B), img.Components[2].Data[i])
				}
			}
		})
	}

	out.Reset()
	root = NewRoot(context.Background(), "test")
	root.SetOut(&out)
	root.SetArgs([]string{"info", "-i", j2c})
	require.NoError(t, root.Execute())
	var info htj2k.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, 40, info.Width)
	assert.Equal(t, 4, info.Tiles)
	assert.True(t, info.Reversible)
	assert.Equal(t, []string{"cli"}, info.Comments)

	out.Reset()
	root = NewRoot(context.Background(), "test")
	root.SetOut(&out)
	root.SetArgs([]string{"info", j2c, "-f", "text"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Image: 40x24 at 0,0")
	assert.Contains(t, out.String(), "Transform: 5/3 reversible, 2 levels")
}

func TestCLI_ExpandSkipRes(t *testing.T) {
	dir := t.TempDir()
	img := htj2k.NewImage(32, 20, 1, 8)
	for i := range img.Components[0].Data {
		img.Components[0].Data[i] = int32(i % 256)
	}
	in := filepath.Join(dir, "in.pgm")
	f, err := os.Create(in)
	require.NoError(t, err)
	require.NoError(t, writePNM(f, img))
	require.NoError(t, f.Close())

	j2c := filepath.Join(dir, "in.j2c")
	root := NewRoot(context.Background(), "test")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"compress", "-i", in, "-o", j2c, "--num-decomps", "3", "--qstep", "0.01"})
	require.NoError(t, root.Execute())

	small := filepath.Join(dir, "small.pgm")
	root = NewRoot(context.Background(), "test")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"expand", "-i", j2c, "-o", small, "--skip-res", "2,2"})
	require.NoError(t, root.Execute())
	got, err := readImage(context.Background(), small, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Width)
	assert.Equal(t, 5, got.Height)
}

func TestCLI_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing output", args: []string{"compress", "-i", filepath.Join(dir, "x.png")}},
		{name: "missing input file", args: []string{"compress", "-i", filepath.Join(dir, "x.png"), "-o", filepath.Join(dir, "x.j2c")}},
		{name: "reversible with qstep", args: []string{"compress", "-i", "a.pgm", "-o", "b.j2c", "--reversible", "--qstep", "0.1", "--prog-order", "bad"}},
		{name: "expand garbage", args: []string{"expand", "-i", filepath.Join(dir, "none.j2c"), "-o", filepath.Join(dir, "o.png")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := NewRoot(context.Background(), "test")
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)
			assert.Error(t, root.Execute())
		})
	}
	_, err := os.Stat(filepath.Join(dir, "x.j2c"))
	assert.True(t, os.IsNotExist(err))
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	root := NewRoot(context.Background(), "abc123")
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "abc123\n", out.String())
}

func TestRoot_ClosesLogFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logFile := filepath.Join(t.TempDir(), "htjctl.log")
	var stderr bytes.Buffer
	root := NewRoot(context.Background(), "abc123")
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&stderr)
	root.SetArgs([]string{"version", "--log-file", logFile, "--log-level", "bogus"})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Invalid log level")

	// the rotated file is closed and detached once the command finishes
	slog.Info("after close")
	data, err = os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "after close")
	assert.Contains(t, stderr.String(), "after close")
}

func TestWriteImage_NoPartialFile(t *testing.T) {
	dir := t.TempDir()
	// two components cannot be stored as netpbm, so the encoder fails after
	// the output was opened
	img := htj2k.NewImage(4, 4, 2, 8)
	path := filepath.Join(dir, "two.pgm")
	err := writeImage(path, img)
	require.ErrorIs(t, err, htj2k.ErrConfiguration)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = writeFile(filepath.Join(dir, "out.j2c"), func(w io.Writer) error {
		_, _ = w.Write([]byte{0xFF, 0x4F})
		return io.ErrShortWrite
	})
	require.ErrorIs(t, err, io.ErrShortWrite)
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	good := filepath.Join(dir, "one.pgm")
	require.NoError(t, writeImage(good, htj2k.NewImage(4, 4, 1, 8)))
	info, err := os.Stat(good)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
