// Package spotsio reads and writes the CSV files the CLI exchanges: spot
// coordinate lists and dense region reports.
package spotsio

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"spotdecomp/pkg/decompose"
)

// ReadSpots loads spot coordinates from a CSV file. Every row holds one
// spot, one integer column per axis, in image axis order ((y,x) or
// (z,y,x)). A header row of non-numeric values is skipped. All rows must
// have the same number of columns.
func ReadSpots(path string) ([][]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening spots file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading spots file: %w", err)
	}

	var spots [][]int
	rank := 0
	for i, record := range records {
		coords := make([]int, len(record))
		numeric := true
		for j, field := range record {
			v, err := strconv.Atoi(field)
			if err != nil {
				numeric = false
				break
			}
			coords[j] = v
		}
		if !numeric {
			// tolerate a single header row
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("row %d of %s is not numeric", i+1, path)
		}
		if rank == 0 {
			rank = len(coords)
			if rank != 2 && rank != 3 {
				return nil, fmt.Errorf("spots must have 2 or 3 coordinates, row %d has %d", i+1, rank)
			}
		} else if len(coords) != rank {
			return nil, fmt.Errorf("row %d of %s has %d coordinates, expected %d", i+1, path, len(coords), rank)
		}
		spots = append(spots, coords)
	}
	return spots, nil
}

// WriteSpots saves spot coordinates to a CSV file, one row per spot with a
// header naming the axes.
func WriteSpots(path string, spots [][]int, rank int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating spots file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(axisHeader(rank)); err != nil {
		return err
	}
	for _, spot := range spots {
		record := make([]string, len(spot))
		for i, c := range spot {
			record[i] = strconv.Itoa(c)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// WriteRegions saves the dense region summary records to a CSV file: the
// centroid coordinates, the spot count, the area, the mean intensity and
// the region id.
func WriteRegions(path string, regions []decompose.RegionRecord, rank int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating regions file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := axisHeader(rank)
	header = append(header, "spots", "area", "mean_intensity", "region")
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, region := range regions {
		record := make([]string, 0, len(header))
		for _, c := range region.Centroid {
			record = append(record, strconv.FormatFloat(c, 'f', 2, 64))
		}
		record = append(record,
			strconv.Itoa(region.SpotCount),
			strconv.Itoa(region.Area),
			strconv.FormatFloat(region.MeanIntensity, 'f', 2, 64),
			strconv.Itoa(region.ID))
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func axisHeader(rank int) []string {
	if rank == 3 {
		return []string{"z", "y", "x"}
	}
	return []string{"y", "x"}
}
