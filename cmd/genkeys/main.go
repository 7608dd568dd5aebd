package main

import (
	"crypto/rand"
	"fmt"
	"log"

	"zssp/crypto/p384"
)

func main() {
	kp, err := p384.Generate(rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate private key: %v", err)
	}
	pub := kp.PublicKey().Bytes()

	fmt.Printf("PRIVATE: %x\n", kp.Bytes())
	fmt.Printf("PUBLIC:  %x\n", pub[:])
}
