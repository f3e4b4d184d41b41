package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/forest-guardian/index-composite/internal/engine"
	"github.com/forest-guardian/index-composite/internal/geometry"
	"github.com/forest-guardian/index-composite/internal/properties"
	"github.com/forest-guardian/index-composite/internal/sentinel"
)

func main() {
	// Hardcoded test parameters - modify these to test different scenarios
	roiPath := "data/roi/Sydney.geojson"
	start := time.Date(2022, 3, 6, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 10)
	intervalDays := 5

	if len(os.Args) > 1 {
		roiPath = os.Args[1]
	}

	fmt.Println("=== Test Scene Download ===")
	fmt.Printf("ROI: %s\n", roiPath)
	fmt.Printf("Dates: %s to %s\n\n", start.Format(time.DateOnly), end.Format(time.DateOnly))

	if err := godotenv.Load("../../.env"); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
		fmt.Println("Make sure you have set the required environment variables:")
		fmt.Println("- COPERNICUS_CLIENT_ID")
		fmt.Println("- COPERNICUS_CLIENT_SECRET")
		fmt.Println("- COPERNICUS_TOKEN_URL")
		fmt.Println("- ROOT_PATH")
		fmt.Println()
	}

	roi, err := geometry.LoadROI(roiPath)
	if err != nil {
		log.Fatalf("Failed to load ROI: %v", err)
	}
	fmt.Println("✓ ROI loaded successfully")

	client, err := sentinel.NewClient(sentinel.ConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	imageDir := properties.DataPath("images")
	catalog := sentinel.NewCatalog(client, sentinel.CatalogConfig{
		ImageDir:     imageDir,
		IntervalDays: intervalDays,
		Workers:      2,
		Progress:     true,
	})

	scenes, err := catalog.Scenes(context.Background(), engine.Query{
		Dataset: sentinel.Dataset,
		Start:   start,
		End:     end,
		Region:  roi,
	})
	if err != nil {
		log.Fatalf("Failed to get scenes: %v", err)
	}

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Total scenes: %d\n", len(scenes))
	if len(scenes) == 0 {
		fmt.Println("No scenes were returned. This could mean:")
		fmt.Println("- No satellite data available for these dates")
		fmt.Println("- All pixels were invalid (clouds, etc.)")
		fmt.Println("- API credentials issue")
	}
	for _, scene := range scenes {
		grid := scene.Image.Bands[0].Grid
		b := scene.Footprint()
		fmt.Printf("- %s (bounds: %.6f, %.6f, %.6f, %.6f) (size: %dx%d) (bands: %v)\n",
			scene.Date.Format(time.DateOnly),
			b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y(),
			grid.Width, grid.Height, scene.Image.BandNames())
	}

	fmt.Printf("\nImage files saved to: %s\n", imageDir)
	fmt.Println("\n✓ Test completed successfully!")
}
