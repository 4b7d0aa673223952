package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/mat"

	"ellipsefit/pkg/config"
	"ellipsefit/pkg/isophote"
	"ellipsefit/pkg/testimg"
)

func main() {
	// Parse command line arguments
	fitsPath := flag.String("fits", "", "FITS file containing the image to fit")
	hduIndex := flag.Int("hdu", 0, "Index of the HDU holding the image")
	configPath := flag.String("config", "ellipsefit.yaml", "YAML configuration file (defaults are used when missing)")
	outPath := flag.String("out", "isophotes.csv", "Output CSV table")
	synthetic := flag.Bool("synthetic", false, "Fit a built-in synthetic galaxy image instead of a FITS file")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to the -config path and exit")
	sma0 := flag.Float64("sma0", 0, "Starting semi-major axis in pixels (overrides config)")
	maxSMA := flag.Float64("maxsma", 0, "Maximum semi-major axis in pixels (overrides config)")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Wrote default configuration to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *fitsPath == "" && !*synthetic {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *sma0 > 0 {
		cfg.Fit.SMA0 = *sma0
	}
	if *maxSMA > 0 {
		cfg.Fit.MaxSMA = *maxSMA
	}

	// Step 1: load the image
	var data *mat.Dense
	if *synthetic {
		if cfg.Output.Verbose {
			fmt.Println("Step 1: Generating synthetic galaxy image...")
		}
		data, err = testimg.Make(testimg.DefaultOptions())
		if err != nil {
			log.Fatalf("Failed to generate synthetic image: %v", err)
		}
	} else {
		if cfg.Output.Verbose {
			fmt.Printf("Step 1: Loading %s...\n", *fitsPath)
		}
		data, err = loadFITS(*fitsPath, *hduIndex)
		if err != nil {
			log.Fatalf("Failed to load FITS image: %v", err)
		}
	}
	img := isophote.NewImage(data)

	// Step 2: build the seed geometry
	var geom *isophote.Geometry
	if cfg.Geometry.X0 != 0 || cfg.Geometry.Y0 != 0 {
		geom, err = isophote.NewGeometry(
			cfg.Geometry.X0, cfg.Geometry.Y0,
			math.Max(cfg.Fit.SMA0, 1.0),
			cfg.Geometry.EPS,
			cfg.Geometry.PA*math.Pi/180.0,
			cfg.Fit.Step, cfg.Fit.LinearGrowth,
		)
		if err != nil {
			log.Fatalf("Invalid seed geometry: %v", err)
		}
	}

	// Step 3: run the fit
	if cfg.Output.Verbose {
		fmt.Printf("Step 2: Fitting isophotes from sma=%.1f...\n", cfg.Fit.SMA0)
	}
	isolist := isophote.Fit(img, geom, isophote.FitImageOptions{
		SMA0:         cfg.Fit.SMA0,
		MinSMA:       cfg.Fit.MinSMA,
		MaxSMA:       cfg.Fit.MaxSMA,
		Step:         cfg.Fit.Step,
		LinearGrowth: cfg.Fit.LinearGrowth,
		Conver:       cfg.Fit.Convergence,
		MinIt:        cfg.Fit.MinIterations,
		MaxIt:        cfg.Fit.MaxIterations,
		FFlag:        cfg.Fit.FlaggedFraction,
		MaxGErr:      cfg.Fit.MaxGradientError,
		SClip:        cfg.Clipping.Sigma,
		NClip:        cfg.Clipping.Iterations,
		Mode:         isophote.IntegrationMode(cfg.Fit.Integrator),
		MinIntensity: cfg.Fit.MinIntensity,
		FixCenter:    cfg.Geometry.FixCenter,
		FixEPS:       cfg.Geometry.FixEPS,
		FixPA:        cfg.Geometry.FixPA,
	})
	if isolist.Len() == 0 {
		log.Fatal("No isophotes could be fitted; check the seed geometry")
	}
	if cfg.Output.Verbose {
		fmt.Printf("Fitted %d isophotes, sma %.2f to %.2f\n",
			isolist.Len(), isolist[0].SMA(), isolist[isolist.Len()-1].SMA())
	}

	// Step 4: export the table
	columns := parseColumns(cfg.Output.Columns)
	table, err := isolist.Table(columns)
	if err != nil {
		log.Fatalf("Failed to build output table: %v", err)
	}
	if err := writeCSV(*outPath, table); err != nil {
		log.Fatalf("Failed to write output table: %v", err)
	}
	if cfg.Output.Verbose {
		fmt.Printf("Wrote %d rows to %s\n", table.NumRows(), *outPath)
	}
}

// parseColumns turns the config column selection into the selector the
// isophote table expects: "main", "all", or an explicit name list.
func parseColumns(spec string) []string {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "main" {
		return []string{"main"}
	}
	if spec == "all" {
		return []string{"all"}
	}
	parts := strings.Split(spec, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// loadFITS reads a 2D image from the given HDU of a FITS file into a dense
// matrix, converting from whatever pixel type the file uses.
func loadFITS(path string, hduIndex int) (*mat.Dense, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("opening FITS stream: %w", err)
	}
	defer f.Close()

	hdu := f.HDU(hduIndex)
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("HDU %d is not an image", hduIndex)
	}

	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) != 2 {
		return nil, fmt.Errorf("expected a 2D image, got %d axes", len(axes))
	}
	nx, ny := axes[0], axes[1]

	pixels := make([]float64, nx*ny)
	switch hdr.Bitpix() {
	case 8:
		var raw []int8
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			pixels[i] = float64(v)
		}
	case 16:
		var raw []int16
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			pixels[i] = float64(v)
		}
	case 32:
		var raw []int32
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			pixels[i] = float64(v)
		}
	case 64:
		var raw []int64
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			pixels[i] = float64(v)
		}
	case -32:
		var raw []float32
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			pixels[i] = float64(v)
		}
	case -64:
		if err := img.Read(&pixels); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", hdr.Bitpix())
	}

	return mat.NewDense(ny, nx, pixels), nil
}

// writeCSV writes the columnar table with a header row.
func writeCSV(path string, table *isophote.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Names); err != nil {
		return err
	}
	row := make([]string, len(table.Names))
	for i := 0; i < table.NumRows(); i++ {
		for c, name := range table.Names {
			row[c] = strconv.FormatFloat(table.Columns[name][i], 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
