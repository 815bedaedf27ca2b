// rosctl works with RouterOS-style configuration records: it tokenizes and
// quotes command lines, filters records with restrict rules and brings
// records to a desired state with find-and-modify.
package main

func main() {
	Execute()
}
