// Command pennyctl is the operator tool for penny: schema migrations,
// one-shot assistant questions and read-only views of stored profiles.
package main

func main() {
	Execute()
}
