// Command materialctl queries the materials spreadsheet from the terminal.
//
// It reads the same environment (and .env file) as the server:
//
//	materialctl search newton --filter Tipo=Ejercicio
//	materialctl options
//	materialctl fetch --json
//
// Errors are printed with the same support codes the API returns.
package main
