package main

import (
	"fmt"

	"github.com/bhaavyasura7/E2ee-chat/clients/go/e2ee"
)

func main() {
	kp, err := e2ee.GenerateKeyPair()
	if err != nil {
		panic(err)
	}

	fmt.Printf("Public key (base64 SPKI):\n%s\n\n", kp.PublicKey)
	fmt.Printf("Private key (base64 PKCS#8):\n%s\n", kp.PrivateKey)
}
