package main

import "github.com/edgeflare/pgbridge/cmd/pgbridge"

func main() {
	pgbridge.Main()
}
