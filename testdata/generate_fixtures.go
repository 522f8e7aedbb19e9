//go:build ignore

// This program generates the sample roster used by benchmarks and smoke tests.
//
//	go run testdata/generate_fixtures.go [-n 500]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klytics/rosterbot/internal/commands"
	"github.com/klytics/rosterbot/internal/formats/xlsx"
	"github.com/klytics/rosterbot/internal/roster"
)

var (
	firstNames = []string{"Walid", "Sara", "Amine", "Yasmine", "Karim", "Ines", "Mehdi", "Leila", "Omar", "Nour"}
	lastNames  = []string{"Ben Ali", "Trabelsi", "Haddad", "Mansour", "Jaziri", "Gharbi", "Khelifi", "Bouazizi"}
	roles      = []string{"Chef", "Guide", "Participant", "Participant", "Participant", "Médecin"}
	trips      = []string{"TU-101", "TU-205", "SV-342", "*"}
	hotels     = []string{"Hilton Makkah", "Swissôtel", "Pullman Zamzam", "*"}
)

func main() {
	n := flag.Int("n", 200, "number of attendees")
	out := flag.String("o", filepath.Join("testdata", "sample.xlsx"), "output path")
	flag.Parse()

	if err := generateRoster(*out, *n); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d attendees to %s\n", *n, *out)
}

func generateRoster(path string, n int) error {
	f := commands.DefaultFields()
	rows := [][]string{{f.Name, f.Phone, f.Role, f.Trip, f.Hotel, f.Room}}
	for i := 0; i < n; i++ {
		phone := fmt.Sprintf("9665%08d", 10000000+i*7919%90000000)
		if i%9 == 0 {
			phone = "*"
		}
		room := fmt.Sprintf("%d", 100+i%400)
		if i%13 == 0 {
			room = "*"
		}
		rows = append(rows, []string{
			firstNames[i%len(firstNames)] + " " + lastNames[(i/len(firstNames))%len(lastNames)],
			phone,
			roles[i%len(roles)],
			trips[i%len(trips)],
			hotels[(i/3)%len(hotels)],
			room,
		})
	}

	wb := &xlsx.Workbook{Sheets: []xlsx.Sheet{{Name: roster.DefaultSheet, Rows: rows}}}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return xlsx.WriteFile(wb, path)
}
