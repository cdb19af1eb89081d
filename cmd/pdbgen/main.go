// pdbgen synthesizes a Microsoft PDB file from a JSON symbol table.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pdbforge/pdbgen/pkg/pdb"
	"github.com/pdbforge/pdbgen/pkg/pdb/streams"
)

func main() {
	outPath := flag.String("o", "out.pdb", "Output PDB file path")
	machine := flag.String("machine", "", "Override machine type (x86, x64, arm, arm64)")
	verify := flag.Bool("verify", false, "Re-open the produced file and dump a summary")
	prettyPrint := flag.Bool("pretty", false, "Pretty-print verify JSON output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <symbol-table.json>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -o app.pdb symbols.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -o app.pdb -verify -pretty symbols.json\n", os.Args[0])
	}

	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	input, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading symbol table: %v\n", err)
		os.Exit(1)
	}

	var table pdb.SymbolTable
	if err := json.Unmarshal(input, &table); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing symbol table: %v\n", err)
		os.Exit(1)
	}

	if *machine != "" {
		m, err := parseMachine(*machine)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		table.Identity.Machine = m
	}
	if table.Identity.Machine == streams.MachineUnknown {
		table.Identity.Machine = streams.MachineAMD64
	}

	result, err := pdb.Synthesize(&table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error synthesizing PDB: %v\n", err)
		os.Exit(1)
	}
	for _, name := range result.SkippedFunctions {
		fmt.Fprintf(os.Stderr, "Warning: %s is not inside any section, skipped\n", name)
	}

	if err := os.WriteFile(*outPath, result.Data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing PDB: %v\n", err)
		os.Exit(1)
	}

	if !*verify {
		return
	}

	f, err := pdb.OpenImage(result.Data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error re-opening produced PDB: %v\n", err)
		os.Exit(1)
	}

	summary := map[string]interface{}{
		"info":           f.Info(),
		"modules":        f.Modules(),
		"functions":      f.Functions(),
		"public_symbols": f.PublicSymbols(),
		"type_count":     f.TypeCount(),
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetEscapeHTML(false)
	if *prettyPrint {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(summary); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// parseMachine maps a machine name to its PE machine constant.
func parseMachine(name string) (uint16, error) {
	switch name {
	case "x86":
		return streams.MachineI386, nil
	case "x64", "amd64":
		return streams.MachineAMD64, nil
	case "arm":
		return streams.MachineARM, nil
	case "arm64":
		return streams.MachineARM64, nil
	default:
		return 0, fmt.Errorf("unknown machine type %q", name)
	}
}
