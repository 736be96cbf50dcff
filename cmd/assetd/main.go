// Command assetd serves dashboard assets over HTTP.
package main

func main() {
	Execute()
}
