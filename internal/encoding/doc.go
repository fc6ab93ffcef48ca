// Package encoding streams query results into the supported download
// formats and parses them back.
//
// Every encoder writes the column header once and then one record per row,
// in the order the rows arrive. Nothing is buffered beyond a single row.
//
//	tsv     feature<TAB>s1<TAB>s2         g1<TAB>1.000000<TAB>2.000000
//	csv     feature,s1,s2                 g1,1.000000,2.000000
//	sparse  #samples<TAB>s1<TAB>s2        g1<TAB>0:1.000000<TAB>1:2.000000
//	binary  "RNAB" | version | units | labels | (0x01 label values)* | 0x00
//	json    {"units":"TPM","samples":[..]} then {"feature":"g1","values":[..]}
package encoding
