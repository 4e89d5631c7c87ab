// inspect dumps raw store keys for offline debugging. Point it at a closed
// database directory; it opens Pebble read-only and prints keys (and
// optionally values) under a prefix.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

func main() {
	var (
		path   = flag.String("db", "", "pebble database path")
		prefix = flag.String("prefix", "conv:", "key prefix to scan")
		values = flag.Bool("values", false, "print values as well as keys")
	)
	flag.Parse()
	if *path == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}

	db, err := pebble.Open(*path, &pebble.Options{ReadOnly: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *path, err)
		os.Exit(1)
	}
	defer db.Close()

	lower := []byte(*prefix)
	upper := append(append([]byte{}, lower...), 0xff)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		fmt.Fprintf(os.Stderr, "iterator: %v\n", err)
		os.Exit(1)
	}
	defer iter.Close()

	var n int
	for iter.First(); iter.Valid(); iter.Next() {
		if *values {
			fmt.Printf("%s\t%s\n", iter.Key(), iter.Value())
		} else {
			fmt.Printf("%s\n", iter.Key())
		}
		n++
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", n)
}
