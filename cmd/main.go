package main

import (
	"github.com/power-warden/powa/cmd/powa"
)

func main() {
	powa.Execute()
}
