package dataset

// ExampleData is the sample table shown to users: six DMUs, two inputs and a
// single unit output.
const ExampleData = `DMU	input:labor	input:capital	output:product1
A	4	3	1
B	7	3	1
C	8	1	1
D	4	2	1
E	2	4	1
F	10	1	1
`
