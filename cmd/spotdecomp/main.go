package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "image/png"

	"golang.org/x/image/tiff"

	"spotdecomp/internal/spotsio"
	"spotdecomp/pkg/config"
	"spotdecomp/pkg/decompose"
	"spotdecomp/pkg/detection"
	"spotdecomp/pkg/psf"
	"spotdecomp/pkg/visualization"
	"spotdecomp/pkg/volume"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "Input image (8/16-bit grayscale TIFF or PNG)")
	spotsPath := flag.String("spots", "", "CSV file with detected spot coordinates (optional, spots are detected with a LoG filter when omitted)")
	outputPath := flag.String("output", "spots_decomposed.csv", "Output CSV for the decomposed spot list")
	regionsPath := flag.String("regions", "regions.csv", "Output CSV for the dense region report")
	overlayPath := flag.String("overlay", "", "Optional PNG overlay of regions and spots")
	configPath := flag.String("config", "spotdecomp.yaml", "YAML configuration file")
	alpha := flag.Float64("alpha", -1, "Reference spot intensity percentile in [0,1] (overrides config)")
	beta := flag.Float64("beta", -1, "Dense region threshold factor (overrides config)")
	gamma := flag.Float64("gamma", -1, "Background blur scale factor (overrides config)")
	cores := flag.Int("cores", 0, "Number of CPU cores for parallel region fitting (overrides config)")
	flag.Parse()

	// Validate inputs
	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration, then apply command line overrides
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *alpha >= 0 {
		cfg.Decomposition.Alpha = *alpha
	}
	if *beta >= 0 {
		cfg.Decomposition.Beta = *beta
	}
	if *gamma >= 0 {
		cfg.Decomposition.Gamma = *gamma
	}
	if *cores > 0 {
		cfg.Processing.NumCores = *cores
	}

	geom := psf.Geometry{
		VoxelZ:  cfg.Geometry.VoxelZ,
		VoxelYX: cfg.Geometry.VoxelYX,
		PSFZ:    cfg.Geometry.PSFZ,
		PSFYX:   cfg.Geometry.PSFYX,
	}

	if cfg.Processing.Verbose {
		fmt.Println("================================")
		fmt.Println("DENSE SPOT DECOMPOSITION")
		fmt.Println("================================")
	}

	// Step 1: Load the input image
	if cfg.Processing.Verbose {
		fmt.Println("Step 1: Loading input image...")
	}
	img, err := loadImage(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load image: %v", err)
	}

	// Step 2: Load or detect the initial spots
	var spots [][]int
	if *spotsPath != "" {
		if cfg.Processing.Verbose {
			fmt.Println("Step 2: Loading detected spots...")
		}
		spots, err = spotsio.ReadSpots(*spotsPath)
		if err != nil {
			log.Fatalf("Failed to load spots: %v", err)
		}
	} else {
		if cfg.Processing.Verbose {
			fmt.Println("Step 2: Detecting spots with a LoG filter...")
		}
		detected, err := detection.DetectSpots(img, geom, detection.Options{
			MinDistance:       cfg.Detection.MinDistance,
			Threshold:         cfg.Detection.Threshold,
			RelativeThreshold: cfg.Detection.RelativeThreshold,
		})
		if err != nil {
			log.Fatalf("Spot detection failed: %v", err)
		}
		spots = detected.Spots
	}
	if cfg.Processing.Verbose {
		fmt.Printf("Loaded %d spots.\n", len(spots))
	}

	// Step 3: Decompose dense regions
	if cfg.Processing.Verbose {
		fmt.Println("Step 3: Decomposing dense regions...")
	}
	start := time.Now()
	result, err := decompose.DecomposeDense(img, spots, geom, decompose.Options{
		Alpha:   cfg.Decomposition.Alpha,
		Beta:    cfg.Decomposition.Beta,
		Gamma:   cfg.Decomposition.Gamma,
		Limit:   cfg.Decomposition.Limit,
		Workers: cfg.Processing.NumCores,
	})
	if err != nil {
		log.Fatalf("Decomposition failed: %v", err)
	}
	for _, warning := range result.Warnings {
		fmt.Printf("Warning: %s\n", warning)
	}
	if cfg.Processing.Verbose {
		fmt.Printf("Decomposition finished in %v: %d spots in, %d spots out, %d dense regions.\n",
			time.Since(start), len(spots), len(result.Spots), len(result.Regions))
	}

	// Step 4: Write the results
	if cfg.Processing.Verbose {
		fmt.Println("Step 4: Writing results...")
	}
	if err := spotsio.WriteSpots(*outputPath, result.Spots, img.Rank()); err != nil {
		log.Fatalf("Failed to write spots: %v", err)
	}
	if err := spotsio.WriteRegions(*regionsPath, result.Regions, img.Rank()); err != nil {
		log.Fatalf("Failed to write regions: %v", err)
	}

	// Step 5: Optional overlay rendering
	if *overlayPath != "" {
		if cfg.Processing.Verbose {
			fmt.Println("Step 5: Rendering overlay...")
		}
		regions, _, _, err := decompose.DetectDenseRegions(img, spots, geom, cfg.Decomposition.Beta)
		if err != nil {
			log.Fatalf("Failed to detect regions for overlay: %v", err)
		}
		if err := visualization.SaveOverlay(*overlayPath, img, regions, result.Spots); err != nil {
			log.Fatalf("Failed to save overlay: %v", err)
		}
	}

	if cfg.Processing.Verbose {
		fmt.Println("Done.")
	}
}

// loadImage decodes a grayscale image file into a 2-d volume. 16-bit
// sources keep their full dynamic range.
func loadImage(path string) (*volume.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var decoded image.Image
	switch ext := filepath.Ext(path); ext {
	case ".tif", ".tiff":
		decoded, err = tiff.Decode(file)
	default:
		decoded, _, err = image.Decode(file)
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}

	bounds := decoded.Bounds()
	height := bounds.Dy()
	width := bounds.Dx()

	kind := volume.Uint8
	if _, ok := decoded.(*image.Gray16); ok {
		kind = volume.Uint16
	}
	img, err := volume.New(kind, height, width)
	if err != nil {
		return nil, err
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := decoded.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if kind == volume.Uint8 {
				img.Set(float64(r>>8), y, x)
			} else {
				img.Set(float64(r), y, x)
			}
		}
	}
	return img, nil
}
