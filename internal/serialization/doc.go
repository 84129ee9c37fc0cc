// Package serialization stores named float32 matrices in the SafeTensors
// format, used for network parameters and training checkpoints.
//
//	File structure:
//	  [8 bytes: header size (uint64 LE)]
//	  [header: JSON object]
//	    "__metadata__": {string: string}
//	    "<name>": {"dtype": "F32", "shape": [rows, cols], "data_offsets": [begin, end]}
//	  [tensor data: little-endian float32, names in sorted order]
//
// The writer stores the SHA-256 of the data section under the "sha256"
// metadata key; the reader verifies it unless told otherwise.
//
// Example usage:
//
//	// Save parameters
//	err := serialization.WriteSafeTensors("model.safetensors", net.StateDict(), nil)
//
//	// Load parameters
//	state, meta, err := serialization.ReadSafeTensors("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = net.LoadStateDict(state)
package serialization
